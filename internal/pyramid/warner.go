package pyramid

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// ToleranceWarner emits the "spacing not met" diagnostic at most once for
// its lifetime. One warner is created per process and handed to every
// Index; tests create their own and Reset it.
type ToleranceWarner struct {
	mu     sync.Mutex
	fired  bool
	logger log.FieldLogger
}

// NewToleranceWarner creates a warner that writes to logger, or to the
// logrus standard logger when logger is nil.
func NewToleranceWarner(logger log.FieldLogger) *ToleranceWarner {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ToleranceWarner{logger: logger}
}

// Warn logs the tolerance miss unless it has already been logged.
// It reports whether this call emitted the message.
func (w *ToleranceWarner) Warn(target, tolerance, resolved float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return false
	}
	w.fired = true
	w.logger.WithFields(log.Fields{
		"target_spacing":   target,
		"tolerance":        tolerance,
		"resolved_spacing": resolved,
	}).Warnf("[Pyramid] Unable to find a spacing within %.0f%% of the target spacing (%.2f). Resampling from %.2f instead.",
		tolerance*100, target, resolved)
	return true
}

// Fired reports whether the diagnostic has been emitted.
func (w *ToleranceWarner) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Reset re-arms the warner.
func (w *ToleranceWarner) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fired = false
}
