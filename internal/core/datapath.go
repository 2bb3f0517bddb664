package core

import "golang.org/x/sys/unix"

// ErrConnReset is delivered exactly once after a peer tears down the
// connection (spec §4.6 reset, §9 Open Question "post-reset read of
// 0"). Subsequent stream/seqpacket operations on the same slot return
// unix.ENOTCONN, not a POSIX-style EOF — preserved for fidelity per
// the spec's explicit decision to keep this behavior rather than smooth
// it into a more conventional EOF.
var ErrConnReset = unix.ECONNRESET

// Has reports whether bit is set in m.
func (m Mode) Has(bit Mode) bool { return m&bit != 0 }

func bufFull(s *Slot) bool { return s.size >= len(s.buf) }

// PerformRead implements perform_read (spec §4.3). pretend=true reports
// the outcome without mutating state or copying bytes; it is used by
// Select.
//
// Decision order is taken verbatim from the spec, including the
// corner case that an empty buffer whose peer has shut down its write
// half returns (0, nil) — an ordinary EOF, not an error; with no peer at
// all a stream/seqpacket read returns ECONNRESET or ENOTCONN instead —
// so Select's READ-ready computation
// does not mark it ready via the error branch; only a positive count,
// a non-empty backlog, or a genuine non-WouldBlock error does.
func (e *Engine) PerformRead(minor int, dstEndpt Endpoint, grant Grant, n int, pretend bool) (int, error) {
	if n == 0 {
		return 0, nil
	}
	s := e.Table.Get(minor)
	if !s.Mode.Has(ModeR) {
		return 0, unix.EPIPE
	}

	if s.size == 0 {
		done, result, err := e.readEmptyOutcome(s, pretend)
		if done {
			return result, err
		}
		// Blocking check: pretend reports WouldBlock; otherwise the
		// dispatcher parks the request on this same outcome.
		return 0, ErrWouldBlock
	}

	if n > s.size {
		n = s.size
	}
	if pretend {
		return n, nil
	}

	copied, err := s.drain(n, func(seg []byte) (int, error) {
		return e.Copier.CopyOut(seg, dstEndpt, grant, len(seg))
	})
	if err != nil {
		return copied, err
	}

	if s.Peer != NoSlot {
		peer := e.Table.Get(s.Peer)
		if peer.Suspended == SuspWrite {
			e.Unsuspend(s.Peer)
		}
		// "buffer" here is this slot's own ring: it is what the peer's
		// perform_write fills as its target, so draining it is what a
		// blocked peer writer is waiting on (spec §4.3 step 8).
		if !bufFull(s) {
			e.notifyReady(s.Peer, OpWrite)
		}
	}

	return copied, nil
}

// readEmptyOutcome implements spec §4.3 step 3: the decision tree
// reached when size == 0. done=false means the caller must block
// (park, or report WouldBlock when pretending); done=true carries the
// final (result, err) outcome.
func (e *Engine) readEmptyOutcome(s *Slot, pretend bool) (done bool, result int, err error) {
	if s.Peer == NoSlot {
		switch s.Type {
		case TypeStream, TypeSeqpacket:
			if s.Err == ErrConnReset {
				if !pretend {
					s.Err = nil
				}
				return true, 0, ErrConnReset
			}
			return true, 0, unix.ENOTCONN
		default: // DGRAM: fall through to the blocking/park check below.
			return false, 0, nil
		}
	}
	peer := e.Table.Get(s.Peer)
	if !peer.Mode.Has(ModeW) {
		return true, 0, nil // EOF on closed pipe
	}
	return false, 0, nil
}

// PerformWrite implements perform_write (spec §4.4).
func (e *Engine) PerformWrite(minor int, srcEndpt Endpoint, grant Grant, n int, pretend bool) (int, error) {
	if n == 0 {
		return 0, nil
	}
	s := e.Table.Get(minor)
	if !s.Mode.Has(ModeW) {
		return 0, unix.EPIPE
	}
	if n > len(s.buf) && s.Type != TypeStream {
		return 0, unix.EMSGSIZE
	}

	target, blocked, err := e.findWriteTarget(s, pretend)
	if err != nil {
		return 0, err
	}
	if blocked {
		return 0, ErrWouldBlock
	}
	if target == NoSlot {
		return 0, unix.ENOENT
	}

	ts := e.Table.Get(target)
	if !ts.Mode.Has(ModeR) {
		return 0, unix.EPIPE
	}

	if s.Type == TypeDgram && ts.size > 0 {
		// Boundary rule (spec §4.4 step 6, §9 Open Question "datagram
		// drop vs queue"): silently discard the newest datagram rather
		// than queueing or blocking. Preserved for spec fidelity even
		// though "drop-oldest" or "queue" are more common elsewhere.
		e.observeDatagramDrop(minor)
		return n, nil
	}

	if bufFull(ts) || (s.Type == TypeSeqpacket && ts.size > 0) {
		// Assertion (spec §4.4 step 7): a reader cannot be suspended on
		// a full buffer — only this writer-side path parks here.
		return 0, ErrWouldBlock
	}

	avail := len(ts.buf) - ts.size
	if n > avail {
		n = avail
	}
	if pretend {
		return n, nil
	}

	copied, cerr := ts.fill(n, func(seg []byte) (int, error) {
		return e.Copier.CopyIn(seg, srcEndpt, grant, len(seg))
	})
	if cerr != nil {
		return copied, cerr
	}

	if s.Type == TypeDgram {
		ts.Source = s.Addr
	}

	if ts.Suspended == SuspRead {
		e.Unsuspend(target)
	}
	if ts.size > 0 {
		e.notifyReady(target, OpRead)
	}

	return copied, nil
}

// findWriteTarget implements spec §4.4 step 4 ("Find peer"). blocked
// means the target is still connecting and the caller must park. A
// returned target of NoSlot with blocked=false and err=nil means "no
// datagram peer bound to this address" (ENOENT).
func (e *Engine) findWriteTarget(s *Slot, pretend bool) (target int, blocked bool, err error) {
	switch s.Type {
	case TypeStream, TypeSeqpacket:
		if s.Peer == NoSlot {
			if s.Err == ErrConnReset {
				if !pretend {
					s.Err = nil
				}
				return NoSlot, false, ErrConnReset
			}
			return NoSlot, false, unix.ENOTCONN
		}
		peer := e.Table.Get(s.Peer)
		if peer.Peer == NoSlot {
			// Still connecting: s is attached to a listener's backlog,
			// not yet linked back.
			return NoSlot, true, nil
		}
		return s.Peer, false, nil
	default: // DGRAM
		return e.Table.FindDatagramPeer(s.Target), false, nil
	}
}
