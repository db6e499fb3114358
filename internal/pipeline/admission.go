package pipeline

import (
	"sync"
	"time"
)

// admission implements per-frame admission control: single-flight
// processing, a minimum inter-frame interval, and a device-class
// dependent frame-skip stride. Frames failing admission are dropped, not
// queued.
type admission struct {
	mu          sync.Mutex
	minInterval time.Duration
	stride      int

	inFlight bool
	last     time.Time
	counter  int
}

func newAdmission(minInterval time.Duration, class DeviceClass) *admission {
	return &admission{
		minInterval: minInterval,
		stride:      skipStride(class),
	}
}

// admit reports whether the frame arriving at now may be processed and,
// if so, marks a frame in flight. Every admitted frame must be balanced
// by a done call.
func (a *admission) admit(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inFlight {
		return false
	}
	if !a.last.IsZero() && now.Sub(a.last) < a.minInterval {
		return false
	}
	a.counter++
	if a.stride > 1 && a.counter%a.stride != 0 {
		return false
	}

	a.inFlight = true
	a.last = now
	return true
}

// done releases the in-flight slot.
func (a *admission) done() {
	a.mu.Lock()
	a.inFlight = false
	a.mu.Unlock()
}

// reset clears all admission state for session reuse.
func (a *admission) reset() {
	a.mu.Lock()
	a.inFlight = false
	a.last = time.Time{}
	a.counter = 0
	a.mu.Unlock()
}
