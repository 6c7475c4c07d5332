package core

import (
	"sync"
	"time"
)

// Phase is the stage a run is in.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseReading   Phase = "reading"
	PhaseImporting Phase = "importing"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Done reports whether the phase is final.
func (p Phase) Done() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// RunProgress is a point-in-time view of a run.
type RunProgress struct {
	RunID      string `json:"run_id"`
	Importer   string `json:"importer"`
	FileName   string `json:"file_name"`
	Phase      Phase  `json:"phase"`
	Status     Status `json:"status"`
	Processed  int    `json:"processed"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	BytesRead  int64  `json:"bytes_read"`
	BytesTotal int64  `json:"bytes_total"`
	Error      string `json:"error,omitempty"`
}

// Percent estimates completion from bytes read. Readers that cannot count
// bytes report 0 until the run is done.
func (p RunProgress) Percent() int {
	if p.Phase.Done() {
		return 100
	}
	if p.BytesTotal > 0 && p.BytesRead > 0 {
		return int(min(p.BytesRead*100/p.BytesTotal, 99))
	}
	return 0
}

// notifyEvery is how many rows pass between progress broadcasts.
const notifyEvery = 100

// progressHub holds the latest progress of a run and fans it out to
// subscribers. Slow subscribers miss intermediate updates, never the last.
type progressHub struct {
	mu        sync.Mutex
	progress  RunProgress
	listeners map[chan RunProgress]struct{}
	closed    bool
	lastSent  time.Time
}

func newProgressHub(p RunProgress) *progressHub {
	return &progressHub{progress: p, listeners: make(map[chan RunProgress]struct{})}
}

func (h *progressHub) snapshot() RunProgress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// update applies fn and broadcasts when force is set or enough rows passed.
func (h *progressHub) update(force bool, fn func(*RunProgress)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	before := h.progress.Processed
	fn(&h.progress)
	if force || h.progress.Processed/notifyEvery != before/notifyEvery || time.Since(h.lastSent) > time.Second {
		h.broadcastLocked()
	}
}

func (h *progressHub) broadcastLocked() {
	h.lastSent = time.Now()
	for ch := range h.listeners {
		select {
		case ch <- h.progress:
		default:
		}
	}
}

// subscribe returns a channel primed with the current progress.
// The channel is closed when the run finishes or unsubscribe is called.
func (h *progressHub) subscribe() (<-chan RunProgress, func()) {
	ch := make(chan RunProgress, 16)

	h.mu.Lock()
	defer h.mu.Unlock()
	ch <- h.progress
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.listeners[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.listeners[ch]; ok {
			delete(h.listeners, ch)
			close(ch)
		}
	}
}

// close publishes the final progress and closes every subscriber.
func (h *progressHub) close(final RunProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.progress = final
	for ch := range h.listeners {
		// Drop a stale update if the buffer is full so the final one fits.
		select {
		case ch <- final:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- final:
			default:
			}
		}
		close(ch)
	}
	h.listeners = nil
	h.closed = true
}
