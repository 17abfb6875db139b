package merge

import "sync/atomic"

// StopSignal is the cancellation flag shared by the merger and its feeds.
// It only ever moves from running to stopped.
type StopSignal struct {
	stopped int32
	killch  chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{killch: make(chan struct{})}
}

// Stop raises the signal. Reports whether this call raised it.
func (s *StopSignal) Stop() bool {
	if atomic.SwapInt32(&s.stopped, 1) == 0 {
		close(s.killch)
		return true
	}
	return false
}

func (s *StopSignal) Stopped() bool {
	return atomic.LoadInt32(&s.stopped) == 1
}

// Done is closed once the signal is raised.
func (s *StopSignal) Done() <-chan struct{} {
	return s.killch
}
