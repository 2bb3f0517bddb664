package core

import "golang.org/x/sys/unix"

// Close implements close(minor) (spec §4.6). It validates the minor is
// INUSE, detaches it from whatever peer/backlog/listening graph it
// participates in, releases any staged ancillary FDs, and returns the
// slot to FREE.
//
// The spec's final step — "if shutdown is in progress and this was the
// last INUSE slot, invoke the dispatcher's terminate hook" — is the
// dispatcher's responsibility, not the core's: internal/dispatch calls
// Table.InUseCount() after Close returns and fires its own terminate
// hook, since the countdown lifecycle belongs to the SIGTERM handling
// the core does not own (spec §6).
func (e *Engine) Close(minor int) error {
	if !e.Table.Valid(minor) {
		return unix.ENXIO
	}
	if !e.Table.InUse(minor) {
		return unix.EINVAL
	}
	s := e.Table.Get(minor)

	switch {
	case s.Peer != NoSlot && e.Table.Get(s.Peer).Peer == NoSlot:
		// minor is a pending connector attached to a listener.
		listener := e.Table.Get(s.Peer)
		if !listener.Listening {
			panic("core: close: peer of a pending connector is not listening")
		}
		e.Table.RemoveBacklogEntry(s.Peer, minor)

	case s.Peer != NoSlot && e.Table.Get(s.Peer).Peer == minor:
		// Fully connected.
		e.reset(s.Peer)

	case s.Peer == NoSlot && s.Listening:
		for _, client := range append([]int(nil), s.Backlog...) {
			e.reset(client)
		}
	}

	if s.Listening && s.Child != NoSlot {
		// A parked accept's pre-opened server-side slot has no other
		// owner; release it along with the listener instead of leaking
		// a permanently INUSE slot.
		e.Table.ReleaseChild(minor)
	}

	if len(s.Ancillary) > 0 && e.Ancillary != nil {
		e.Ancillary.ReleaseFDs(s.Ancillary)
	}

	return e.Table.Release(minor)
}

// reset tears down minor's side of a connection after its peer closes
// (spec §4.6). It is also used to tear down backlog entries when a
// listener closes. The next read or write on minor yields
// ErrConnReset exactly once (spec §9 Open Question), then behaves as a
// disconnected socket.
func (e *Engine) reset(minor int) {
	s := e.Table.Get(minor)
	s.Peer = NoSlot
	s.Err = ErrConnReset
	e.observeReset(minor)

	if s.Suspended != SuspNone {
		e.Unsuspend(minor)
	}

	if s.SelOps != 0 {
		ops := s.SelOps
		s.SelOps = 0
		e.Bus.SelectReply(s.SelEndpt, minor, ops)
	}
}
