package core

import "golang.org/x/sys/unix"

// ErrWouldBlock is the core's internal sentinel for "this operation
// cannot complete synchronously" (spec: WOULDBLOCK). PerformRead and
// PerformWrite return it in both pretend and non-pretend mode; on a
// non-pretend call the dispatcher parks the request, then either
// returns ErrWouldBlock as its "don't reply yet" result or, for
// NONBLOCK callers, converts it to EAGAIN/EINPROGRESS (spec §4.5).
var ErrWouldBlock = unix.EAGAIN

// Copier is the cross-endpoint safe-copy primitive spec §1 names as an
// out-of-scope collaborator, pinned here only as an interface: moving
// bytes between the driver's ring buffers and a caller's (endpoint,
// grant) address space. A production embedder supplies a real
// implementation; testing.go supplies an in-memory one.
type Copier interface {
	CopyIn(dst []byte, endpt Endpoint, grant Grant, n int) (int, error)
	CopyOut(src []byte, endpt Endpoint, grant Grant, n int) (int, error)
}

// Bus is the reply-protocol collaborator spec §6 names: the core calls
// back through it to deliver deferred completions and readiness
// notifications. It is the core's view of internal/dispatch; dispatch.go
// implements it.
type Bus interface {
	// TaskReply delivers the deferred completion of a previously parked
	// request to endpt, correlated by id.
	TaskReply(endpt Endpoint, id uint64, result int, err error)
	// SelectReply delivers a readiness notification for minor to
	// selEndpt, reporting the ops that became ready.
	SelectReply(selEndpt Endpoint, minor int, ops Ops)
}
