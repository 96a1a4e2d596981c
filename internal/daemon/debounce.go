package daemon

import "time"

type debounceState int

const (
	// stateIdle means no tracked device; a present observation opens a
	// plug window.
	stateIdle debounceState = iota
	// stateArming means a plug window is open and re-armed by every
	// further present observation.
	stateArming
	// stateHoldoff means a dock cycle already ran for this plug; present
	// observations are re-enumeration noise (flash cycles bounce the bus)
	// and only a quiet stretch after an absent observation returns the
	// machine to idle.
	stateHoldoff
)

// debouncer turns the bouncy add/remove bursts of a physical USB insertion
// into exactly one confirmed plug event per physical session. The same
// quiescence window gates both directions: a plug is confirmed once the
// window passes with the device still present, and a removal is confirmed
// once the window passes with no superseding re-insertion.
type debouncer struct {
	window   time.Duration
	state    debounceState
	deadline time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window}
}

// Observe feeds one presence observation into the state machine.
func (d *debouncer) Observe(present bool, at time.Time) {
	switch d.state {
	case stateIdle:
		if present {
			d.state = stateArming
			d.deadline = at.Add(d.window)
		}
	case stateArming:
		if present {
			d.deadline = at.Add(d.window)
			return
		}
		// The device left before the window closed; a later re-insertion
		// starts a fresh window.
		d.state = stateIdle
		d.deadline = time.Time{}
	case stateHoldoff:
		if present {
			// Supersedes any pending removal.
			d.deadline = time.Time{}
			return
		}
		d.deadline = at.Add(d.window)
	}
}

// Due reports whether an open plug window has closed. It fires at most once
// per physical session: after firing, the machine holds off until a
// debounced removal is confirmed. Due also drives that removal confirmation,
// so it must be called on every tick even while held off.
func (d *debouncer) Due(at time.Time) bool {
	if d.deadline.IsZero() || at.Before(d.deadline) {
		return false
	}
	switch d.state {
	case stateArming:
		d.state = stateHoldoff
		d.deadline = time.Time{}
		return true
	case stateHoldoff:
		d.state = stateIdle
		d.deadline = time.Time{}
	}
	return false
}

// Armed reports whether a plug window is currently pending.
func (d *debouncer) Armed() bool {
	return d.state == stateArming
}
