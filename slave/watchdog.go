package slave

import "time"

// busWatchdog counts down while a transaction is in progress. Every engine
// event re-arms it; stop and error disarm it.
type busWatchdog struct {
	window    time.Duration
	remaining time.Duration
}

func (w *busWatchdog) arm() {
	w.remaining = w.window
}

func (w *busWatchdog) disarm() {
	w.remaining = 0
}

func (w *busWatchdog) armed() bool {
	return w.remaining != 0
}

// expire consumes elapsed time and reports whether the window ran out.
func (w *busWatchdog) expire(elapsed time.Duration) bool {
	if w.remaining == 0 {
		return false
	}
	if w.remaining > elapsed {
		w.remaining -= elapsed
		return false
	}
	w.remaining = 0
	return true
}
