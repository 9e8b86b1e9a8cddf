package metrics

import (
	"context"
	"time"
)

// Collector records frame snapshots produced by the workload.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Repository defines the interface for snapshot storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Recent(limit int) ([]Snapshot, error)
	Close() error
}

// Snapshot is one frame of the hint/thermal loop.
type Snapshot struct {
	Timestamp     time.Time
	ThermalStatus int
	Headroom      float32
	Actual        time.Duration
	Target        time.Duration
	Threads       int
	SessionID     string
	ThermalTier   string
	HintTier      string
	Throttled     bool
}
