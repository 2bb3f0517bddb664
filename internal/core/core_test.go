package core

import "golang.org/x/sys/unix"

// testCopier is a same-process slice-backed Copier for core's own unit
// tests (the root package's testing.go supplies the equivalent for the rest of
// the module; this package keeps its own to avoid importing the root
// package from an internal/core test, which would cycle back here).
type testCopier struct{}

func (testCopier) CopyIn(dst []byte, _ Endpoint, grant Grant, n int) (int, error) {
	src, ok := grant.([]byte)
	if !ok {
		return 0, unix.EINVAL
	}
	c := copy(dst[:n], src)
	return c, nil
}

func (testCopier) CopyOut(src []byte, _ Endpoint, grant Grant, n int) (int, error) {
	dst, ok := grant.(*[]byte)
	if !ok {
		return 0, unix.EINVAL
	}
	*dst = append(*dst, src[:n]...)
	return n, nil
}

// testBus records every reply delivered through it.
type testBus struct {
	taskReplies   []taskReplyCall
	selectReplies []selectReplyCall
}

type taskReplyCall struct {
	Endpt  Endpoint
	ID     uint64
	Result int
	Err    error
}

type selectReplyCall struct {
	Endpt Endpoint
	Minor int
	Ops   Ops
}

func (b *testBus) TaskReply(endpt Endpoint, id uint64, result int, err error) {
	b.taskReplies = append(b.taskReplies, taskReplyCall{endpt, id, result, err})
}

func (b *testBus) SelectReply(selEndpt Endpoint, minor int, ops Ops) {
	b.selectReplies = append(b.selectReplies, selectReplyCall{selEndpt, minor, ops})
}

func newTestEngine() (*Engine, *testBus) {
	bus := &testBus{}
	e := NewEngine(&Config{
		TableSize:    16,
		RingCapacity: 8,
		BacklogLen:   4,
		PathMax:      64,
		OpenMax:      4,
	}, testCopier{}, bus)
	return e, bus
}

// connectStreamPair opens two slots of sockType and links them as a fully
// connected pair, bypassing internal/ctrl's bind/connect/accept (tested
// separately) so core tests can focus on the data path.
func connectStreamPair(e *Engine, sockType SockType) (a, b int) {
	a, _ = e.Table.Open(1, Ucred{})
	b, _ = e.Table.Open(2, Ucred{})
	e.Table.Get(a).Type = sockType
	e.Table.Get(b).Type = sockType
	e.Table.Link(a, b)
	return a, b
}
