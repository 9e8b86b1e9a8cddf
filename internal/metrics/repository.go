package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db       *sql.DB
	logger   logger.Logger
	cfg      Config
	mu       sync.Mutex
	buffer   []*Snapshot
	closed   bool
	ticker   *time.Ticker
	shutdown chan struct{}
	done     chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.DBPath), "backups")
	}
	if err := ValidateAndUpdateSchema(db, backupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:       db,
		logger:   log,
		cfg:      cfg,
		buffer:   make([]*Snapshot, 0, cfg.BatchSize),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	// Periodic flushing only makes sense when records are batched
	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.ticker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.done)
	}

	return repo, nil
}

func (r *repository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrStorageAccess)
	}

	r.buffer = append(r.buffer, snapshot)
	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Recent returns up to limit snapshots, newest first. Buffered snapshots are
// flushed first so they are included.
func (r *repository) Recent(limit int) ([]Snapshot, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errFactory.New(ErrStorageAccess)
	}
	if err := r.flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(selectRecentSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s                  Snapshot
			ts, actual, target int64
			throttled          int
		)
		if err := rows.Scan(&ts, &s.ThermalStatus, &s.Headroom, &actual, &target,
			&s.Threads, &s.SessionID, &s.ThermalTier, &s.HintTier, &throttled); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		s.Timestamp = time.Unix(0, ts).UTC()
		s.Actual = time.Duration(actual)
		s.Target = time.Duration(target)
		s.Throttled = throttled == 1
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdown)
	if r.ticker != nil {
		r.ticker.Stop()
	}
	<-r.done

	// Anything left when no flusher was running
	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Final flush failed")
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Metrics repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.done)

	for {
		select {
		case <-r.ticker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdown:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Shutdown flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. Caller holds r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertFrameSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, s := range r.buffer {
		if _, err := stmt.Exec(
			s.Timestamp.UnixNano(),
			s.ThermalStatus,
			float64(s.Headroom),
			int64(s.Actual),
			int64(s.Target),
			s.Threads,
			s.SessionID,
			s.ThermalTier,
			s.HintTier,
			boolToInt(s.Throttled),
		); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed snapshots to database")
	r.buffer = r.buffer[:0]

	return nil
}
