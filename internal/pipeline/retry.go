package pipeline

import "time"

// retryDelay returns how long to wait before the next attempt after the
// given number of failures. The delay doubles from the configured base and
// is clamped at the configured cap.
func (m *Manager) retryDelay(failures int) time.Duration {
	base := time.Duration(m.cfg.Pipeline.RetryBackoffBase) * time.Second
	if base <= 0 {
		base = time.Minute
	}
	limit := time.Duration(m.cfg.Pipeline.RetryBackoffCap) * time.Second
	if limit < base {
		limit = base
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}
