package platform

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

type sample struct {
	at       time.Time
	headroom float32
}

// Window keeps the most recent headroom samples and extrapolates them
// linearly.
type Window struct {
	mu   sync.Mutex
	size int
	q    *queue.Queue
}

func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{size: size, q: queue.New()}
}

func (w *Window) Add(at time.Time, headroom float32) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.q.Add(sample{at: at, headroom: headroom})
	for w.q.Length() > w.size {
		w.q.Remove()
	}
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.q.Length()
}

// Forecast projects the newest sample ahead using the slope between the
// oldest and newest samples. Cooling trends are not extrapolated below
// zero.
func (w *Window) Forecast(ahead time.Duration) (float32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.q.Length()
	if n == 0 {
		return 0, false
	}

	newest := w.q.Get(-1).(sample)
	if n == 1 || ahead <= 0 {
		return newest.headroom, true
	}

	oldest := w.q.Peek().(sample)
	span := newest.at.Sub(oldest.at)
	if span <= 0 {
		return newest.headroom, true
	}

	slope := float64(newest.headroom-oldest.headroom) / span.Seconds()
	projected := float64(newest.headroom) + slope*ahead.Seconds()
	if projected < 0 {
		projected = 0
	}
	return float32(projected), true
}
