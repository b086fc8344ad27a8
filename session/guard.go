package session

import "sync/atomic"

// opState is the lifecycle of one guarded operation
type opState int32

const (
	opIdle opState = iota
	opInFlight
)

func (s opState) String() string {
	if s == opInFlight {
		return "in-flight"
	}
	return "idle"
}

// guard admits a single in-flight run of an operation. Overlapping
// triggers fail tryAcquire instead of queueing.
type guard struct {
	state atomic.Int32
}

func (g *guard) tryAcquire() bool {
	return g.state.CompareAndSwap(int32(opIdle), int32(opInFlight))
}

func (g *guard) release() {
	g.state.Store(int32(opIdle))
}

func (g *guard) current() opState {
	return opState(g.state.Load())
}
