package core

// Engine bundles the socket Table with its two external collaborators —
// the Copier that moves bytes across the endpoint boundary and the Bus
// that delivers deferred replies and readiness notifications — into the
// single object the dispatcher drives. The core never spawns goroutines
// and never retains a caller's stack across a would-block decision
// (spec §5); every Engine method call completes synchronously, either
// returning a result or parking state in the Table for a later call to
// replay.
type Engine struct {
	Table  *Table
	Copier Copier
	Bus    Bus

	// Ancillary releases FD slots left staged on a slot that closes
	// without ever sending them (spec §4.6 item 3). Optional: a
	// deployment with no ancillary-FD support leaves this nil.
	Ancillary AncillaryReleaser

	// Observer receives suspend/reset/datagram-drop events for metrics
	// (optional; nil means no observation). A *dispatch.Dispatcher wires
	// its own interfaces.Observer in here since that interface's method
	// set is a superset of EventObserver's.
	Observer EventObserver
}

// EventObserver receives the subset of interfaces.Observer events the
// core itself raises, as opposed to the ones internal/dispatch raises
// directly around Open/Close/Read/Write/Cancel.
type EventObserver interface {
	ObserveSuspend(minor int)
	ObserveWakeup(minor int)
	ObserveReset(minor int)
	ObserveDatagramDrop(minor int)
}

func (e *Engine) observeSuspend(minor int) {
	if e.Observer != nil {
		e.Observer.ObserveSuspend(minor)
	}
}

func (e *Engine) observeWakeup(minor int) {
	if e.Observer != nil {
		e.Observer.ObserveWakeup(minor)
	}
}

func (e *Engine) observeReset(minor int) {
	if e.Observer != nil {
		e.Observer.ObserveReset(minor)
	}
}

func (e *Engine) observeDatagramDrop(minor int) {
	if e.Observer != nil {
		e.Observer.ObserveDatagramDrop(minor)
	}
}

// AncillaryReleaser releases ancillary file descriptors a closed slot
// never got to send. internal/ctrl implements it; the core only needs
// the ability to call back into it at close time.
type AncillaryReleaser interface {
	ReleaseFDs(fds []int)
}

// NewEngine constructs an Engine over a freshly allocated Table.
func NewEngine(cfg *Config, copier Copier, bus Bus) *Engine {
	return &Engine{
		Table:  NewTable(cfg),
		Copier: copier,
		Bus:    bus,
	}
}
