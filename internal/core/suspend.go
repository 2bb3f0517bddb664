package core

import "golang.org/x/sys/unix"

// Suspend parks a request on minor. The dispatcher calls this after a
// read/write entry point's perform_* returns ErrWouldBlock, per spec
// §4.5: "they populate {susp_endpt, susp_grant, susp_size, susp_id} and
// set suspended". For CONNECT and ACCEPT, internal/ctrl's Connect and
// Accept call it themselves (with SuspConnect/SuspAccept) before
// returning ErrWouldBlock. Passing SuspNone is a programming error and
// panics.
func (e *Engine) Suspend(minor int, kind SuspKind, endpt Endpoint, grant Grant, size int, id uint64) {
	if kind == SuspNone {
		panic("core: Suspend called with SuspNone")
	}
	s := e.Table.Get(minor)
	if s.Suspended != SuspNone {
		panic("core: at most one outstanding suspension per slot (spec §8 invariant 6)")
	}
	s.Suspended = kind
	s.SuspEndpt = endpt
	s.SuspGrant = grant
	s.SuspSize = size
	s.SuspID = id
	e.observeSuspend(minor)
}

// Unsuspend replays the parked operation on minor (spec §4.5). On
// successful replay (result no longer WouldBlock) it delivers the
// deferred task-reply and clears the suspension; if the replay still
// blocks, the slot stays parked exactly as it was.
func (e *Engine) Unsuspend(minor int) {
	s := e.Table.Get(minor)
	switch s.Suspended {
	case SuspRead:
		n, err := e.PerformRead(minor, s.SuspEndpt, s.SuspGrant, s.SuspSize, false)
		if err == ErrWouldBlock {
			return
		}
		e.completeSuspension(minor, n, err)

	case SuspWrite:
		n, err := e.PerformWrite(minor, s.SuspEndpt, s.SuspGrant, s.SuspSize, false)
		if err == ErrWouldBlock {
			return
		}
		e.completeSuspension(minor, n, err)

	case SuspConnect, SuspAccept:
		// The control path has already wired the pair; reply with the
		// deferred err (then clear it). ACCEPT's result is the
		// pre-reserved child slot.
		result := 0
		if s.Suspended == SuspAccept {
			result = s.Child
		}
		err := s.Err
		s.Err = nil
		e.completeSuspension(minor, result, err)

	case SuspNone:
		// Nothing parked; a stray wakeup call is a no-op.
	}
}

func (e *Engine) completeSuspension(minor int, result int, err error) {
	s := e.Table.Get(minor)
	endpt, id := s.SuspEndpt, s.SuspID
	s.Suspended = SuspNone
	e.observeWakeup(minor)
	e.Bus.TaskReply(endpt, id, result, err)
}

// Cancel matches an in-flight request by endpoint and request id
// (spec §4.5, the dispatcher's external cancel entry point). A
// mismatch is a benign no-op — a race between cancel and natural
// completion. On match, it undoes whatever the suspension kind
// requires and delivers EINTR through the Bus.
func (e *Engine) Cancel(minor int, endpt Endpoint, id uint64) {
	if _, ok := e.CancelLocal(minor, endpt, id); ok {
		e.Bus.TaskReply(endpt, id, 0, unix.EINTR)
	}
}

// CancelLocal performs the same matching and state cleanup as Cancel
// but returns the result directly instead of calling the Bus. The
// dispatcher uses this for the NONBLOCK conversion described in spec
// §4.5: "park, then immediately cancel", where the reply is still on
// the caller's own stack and must not go through the deferred
// task-reply path. ok is false on a benign mismatch.
func (e *Engine) CancelLocal(minor int, endpt Endpoint, id uint64) (kind SuspKind, ok bool) {
	s := e.Table.Get(minor)
	if s.Suspended == SuspNone || s.SuspEndpt != endpt || s.SuspID != id {
		return SuspNone, false
	}

	kind = s.Suspended
	switch kind {
	case SuspAccept:
		// The accept reservation is undone: the pre-opened child slot
		// is released back to FREE and the listener's Child is cleared.
		e.Table.ReleaseChild(minor)
	case SuspConnect:
		// Left to continue asynchronously: the connection proceeds,
		// the originating call just unblocks.
	case SuspRead, SuspWrite:
		// Nothing else to undo.
	}

	s.Suspended = SuspNone
	return kind, true
}
