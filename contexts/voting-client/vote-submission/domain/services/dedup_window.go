package services

import (
	"strings"
	"sync"
	"time"
)

const DefaultClosureDedupWindow = 5 * time.Second

// DedupWindow admits the first signal for a key and ignores repeats of the
// same key until the window has elapsed.
type DedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func NewDedupWindow(window time.Duration) *DedupWindow {
	if window <= 0 {
		window = DefaultClosureDedupWindow
	}
	return &DedupWindow{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Admit reports whether a signal for key at the given time is genuine.
func (d *DedupWindow) Admit(key string, at time.Time) bool {
	key = strings.TrimSpace(key)
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[key]; ok && at.Sub(last) < d.window {
		return false
	}
	d.seen[key] = at
	d.pruneLocked(at)
	return true
}

func (d *DedupWindow) Window() time.Duration {
	return d.window
}

func (d *DedupWindow) pruneLocked(now time.Time) {
	for key, last := range d.seen {
		if now.Sub(last) >= 4*d.window {
			delete(d.seen, key)
		}
	}
}
