package ctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/go-udsock/udsock/internal/core"
)

type nopCopier struct{}

func (nopCopier) CopyIn(dst []byte, _ core.Endpoint, _ core.Grant, n int) (int, error)  { return n, nil }
func (nopCopier) CopyOut(src []byte, _ core.Endpoint, _ core.Grant, n int) (int, error) { return n, nil }

type recordingBus struct {
	taskReplies []taskReply
}

type taskReply struct {
	Endpt  core.Endpoint
	ID     uint64
	Result int
	Err    error
}

func (b *recordingBus) TaskReply(endpt core.Endpoint, id uint64, result int, err error) {
	b.taskReplies = append(b.taskReplies, taskReply{endpt, id, result, err})
}
func (b *recordingBus) SelectReply(core.Endpoint, int, core.Ops) {}

func newTestController() (*Controller, *core.Engine, *recordingBus) {
	bus := &recordingBus{}
	engine := core.NewEngine(&core.Config{
		TableSize: 16, RingCapacity: 64, BacklogLen: 4, PathMax: 64, OpenMax: 4,
	}, nopCopier{}, bus)
	return NewController(engine, nil), engine, bus
}

func TestBindListenConnectAcceptHandshake(t *testing.T) {
	ctrl, engine, _ := newTestController()

	server, err := engine.Table.Open(core.Endpoint(1), core.Ucred{PID: 1})
	require.NoError(t, err)
	require.NoError(t, ctrl.Bind(server, "/srv"))
	require.NoError(t, ctrl.Listen(server, 0))

	client, err := engine.Table.Open(core.Endpoint(2), core.Ucred{PID: 2})
	require.NoError(t, err)

	_, err = ctrl.Connect(client, "/srv", core.Endpoint(2), 1)
	assert.ErrorIs(t, err, core.ErrWouldBlock)
	assert.Equal(t, core.SuspConnect, engine.Table.Get(client).Suspended)

	child, err := ctrl.Accept(server, core.Endpoint(1), core.Ucred{PID: 1}, core.Endpoint(1), 2)
	require.NoError(t, err)
	assert.NotEqual(t, core.NoSlot, child)

	assert.Equal(t, child, engine.Table.Get(client).Peer)
	assert.Equal(t, client, engine.Table.Get(child).Peer)
	assert.Equal(t, core.SuspNone, engine.Table.Get(client).Suspended)
}

func TestAcceptParksThenConnectCompletesFastPath(t *testing.T) {
	ctrl, engine, bus := newTestController()

	server, _ := engine.Table.Open(core.Endpoint(1), core.Ucred{})
	require.NoError(t, ctrl.Bind(server, "/srv"))
	require.NoError(t, ctrl.Listen(server, 0))

	_, err := ctrl.Accept(server, core.Endpoint(9), core.Ucred{}, core.Endpoint(1), 5)
	assert.ErrorIs(t, err, core.ErrWouldBlock)
	assert.NotEqual(t, core.NoSlot, engine.Table.Get(server).Child)

	client, _ := engine.Table.Open(core.Endpoint(2), core.Ucred{})
	peer, err := ctrl.Connect(client, "/srv", core.Endpoint(2), 1)
	require.NoError(t, err)
	assert.Equal(t, peer, engine.Table.Get(client).Peer)

	require.Len(t, bus.taskReplies, 1)
	assert.Equal(t, core.Endpoint(1), bus.taskReplies[0].Endpt)
	assert.Equal(t, peer, bus.taskReplies[0].Result)
	assert.NoError(t, bus.taskReplies[0].Err)
	assert.Equal(t, core.NoSlot, engine.Table.Get(server).Child)
}

func TestConnectToUnboundPathIsRefused(t *testing.T) {
	ctrl, engine, _ := newTestController()
	client, _ := engine.Table.Open(core.Endpoint(1), core.Ucred{})

	_, err := ctrl.Connect(client, "/nowhere", core.Endpoint(1), 1)
	assert.ErrorIs(t, err, unix.ECONNREFUSED)
}

func TestShutdownClearsMode(t *testing.T) {
	ctrl, engine, _ := newTestController()
	minor, _ := engine.Table.Open(core.Endpoint(1), core.Ucred{})

	require.NoError(t, ctrl.Shutdown(minor, ShutWR))
	assert.Equal(t, core.ModeR, engine.Table.Get(minor).Mode)
}

func TestGetSockOptPeerCred(t *testing.T) {
	ctrl, engine, _ := newTestController()
	a, _ := engine.Table.Open(core.Endpoint(1), core.Ucred{PID: 11, UID: 22})
	b, _ := engine.Table.Open(core.Endpoint(2), core.Ucred{PID: 33, UID: 44})
	engine.Table.Link(a, b)

	cred, err := ctrl.GetSockOpt(a, SOPeerCred)
	require.NoError(t, err)
	assert.Equal(t, int32(33), cred.PID)
}

func TestGetSockOptNotConnectedIsENOTCONN(t *testing.T) {
	ctrl, engine, _ := newTestController()
	minor, _ := engine.Table.Open(core.Endpoint(1), core.Ucred{})

	_, err := ctrl.GetSockOpt(minor, SOPeerCred)
	assert.ErrorIs(t, err, unix.ENOTCONN)
}

func TestSendRecvFDsRoundTrip(t *testing.T) {
	ctrl, engine, _ := newTestController()
	minor, _ := engine.Table.Open(core.Endpoint(1), core.Ucred{})

	require.NoError(t, ctrl.SendFDs(minor, []int{3, 4}))
	fds, err := ctrl.RecvFDs(minor)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, fds)

	fds, err = ctrl.RecvFDs(minor)
	require.NoError(t, err)
	assert.Nil(t, fds)
}
