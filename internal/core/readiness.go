package core

// Select implements spec §4.7. ops is the union of {OpRead, OpWrite,
// OpErr}, optionally OR'd with OpNotify requesting future notification
// for bits not immediately ready. The immediately-ready subset is
// returned; if OpNotify is set, the remaining bits are recorded on the
// slot (sel_ops/sel_endpt) for later delivery via notifyReady.
func (e *Engine) Select(minor int, ops Ops, endpt Endpoint) Ops {
	s := e.Table.Get(minor)
	var ready Ops

	if ops.Has(OpRead) {
		n, err := e.PerformRead(minor, 0, nil, 1, true)
		switch {
		case n > 0:
			ready |= OpRead
		case s.Listening && e.Table.BacklogHasEntries(minor):
			ready |= OpRead
		case err != nil && err != ErrWouldBlock:
			// The error is delivered on the real read (spec §4.7).
			ready |= OpRead
		}
	}

	if ops.Has(OpWrite) {
		n, err := e.PerformWrite(minor, 0, nil, 1, true)
		if !(n == 0 && err == ErrWouldBlock) {
			ready |= OpWrite
		}
	}

	if ops.Has(OpNotify) {
		remaining := (ops &^ OpNotify) &^ ready
		if remaining != 0 {
			s.SelOps |= remaining
			s.SelEndpt = endpt
		}
	}

	return ready
}

// notifyReady delivers a select-reply for whatever subset of ready is
// currently being watched on minor (spec §4.7: "Notifications are
// emitted from the data path and from reset when the corresponding
// condition becomes true; each notification clears the bits it
// reports").
func (e *Engine) notifyReady(minor int, ready Ops) {
	s := e.Table.Get(minor)
	hit := s.SelOps & ready
	if hit == 0 {
		return
	}
	s.SelOps &^= hit
	e.Bus.SelectReply(s.SelEndpt, minor, hit)
}
