package tipinject

import "time"

type timer interface {
	C() <-chan time.Time
	Stop() bool
}

type clock interface {
	NewTimer(d time.Duration) timer
}

type realClock struct{}

func (realClock) NewTimer(d time.Duration) timer { return realTimer{time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// timerC returns t's channel, or nil (never ready) when t is unset.
func timerC(t timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}
