package udsock

import "sync"

// InMemoryCopier implements Copier by treating a Grant as a plain
// []byte (CopyIn's source) or *[]byte (CopyOut's destination),
// skipping any real cross-endpoint memory-grant mechanism. It is the
// same-process stand-in a caller reaches for in tests, mirroring the
// teacher's MockBackend for exercising Device without real storage.
type InMemoryCopier struct {
	mu    sync.Mutex
	calls int
}

// CopyIn implements Copier.
func (c *InMemoryCopier) CopyIn(dst []byte, _ Endpoint, grant Grant, n int) (int, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	src, _ := grant.([]byte)
	if len(src) < n {
		n = len(src)
	}
	return copy(dst[:n], src[:n]), nil
}

// CopyOut implements Copier.
func (c *InMemoryCopier) CopyOut(src []byte, _ Endpoint, grant Grant, n int) (int, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	dst, ok := grant.(*[]byte)
	if !ok {
		return 0, nil
	}
	*dst = append(*dst, src[:n]...)
	return n, nil
}

// Calls reports how many times CopyIn/CopyOut have been invoked.
func (c *InMemoryCopier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// TaskReplyCall records one Bus.TaskReply invocation.
type TaskReplyCall struct {
	Endpt  Endpoint
	ID     uint64
	Result int
	Err    error
}

// SelectReplyCall records one Bus.SelectReply invocation.
type SelectReplyCall struct {
	SelEndpt Endpoint
	Minor    int
	Ops      Ops
}

// RecordingBus implements Bus by appending every call it receives, for
// assertions in tests that drive a Driver end to end without a real
// character-device harness underneath it.
type RecordingBus struct {
	mu            sync.Mutex
	TaskReplies   []TaskReplyCall
	SelectReplies []SelectReplyCall
}

// TaskReply implements Bus.
func (b *RecordingBus) TaskReply(endpt Endpoint, id uint64, result int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.TaskReplies = append(b.TaskReplies, TaskReplyCall{endpt, id, result, err})
}

// SelectReply implements Bus.
func (b *RecordingBus) SelectReply(selEndpt Endpoint, minor int, ops Ops) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SelectReplies = append(b.SelectReplies, SelectReplyCall{selEndpt, minor, ops})
}

// Last returns the most recent TaskReply, or the zero value if none
// has arrived yet.
func (b *RecordingBus) Last() (TaskReplyCall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.TaskReplies) == 0 {
		return TaskReplyCall{}, false
	}
	return b.TaskReplies[len(b.TaskReplies)-1], true
}
