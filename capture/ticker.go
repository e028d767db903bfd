package capture

import "time"

// Ticker delivers periodic ticks. Tests substitute a manual implementation.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
