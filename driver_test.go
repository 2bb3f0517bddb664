package udsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDriverOpenReadWriteRoundTrip(t *testing.T) {
	bus := &RecordingBus{}
	driver := New(&Config{TableSize: 16, RingCapacity: 64, BacklogLen: 4, PathMax: 64, OpenMax: 4}, &InMemoryCopier{}, bus, nil)
	dops := driver.Dispatcher()

	a, err := dops.Open(Endpoint(1), Ucred{PID: 1})
	require.NoError(t, err)
	b, err := dops.Open(Endpoint(2), Ucred{PID: 2})
	require.NoError(t, err)

	_, err = dops.Ioctl(a, Endpoint(1), CmdBind, BindArgs{Path: "/srv"}, 0, 0)
	require.NoError(t, err)
	_, err = dops.Ioctl(a, Endpoint(1), CmdListen, ListenArgs{}, 0, 0)
	require.NoError(t, err)

	ares, err := dops.Ioctl(a, Endpoint(1), CmdAccept, AcceptArgs{Owner: Endpoint(1)}, 0, 1)
	assert.ErrorIs(t, err, ErrWouldBlock)
	_ = ares

	cres, err := dops.Ioctl(b, Endpoint(2), CmdConnect, ConnectArgs{Path: "/srv"}, 0, 2)
	require.NoError(t, err)
	conn, ok := cres.(ConnectResult)
	require.True(t, ok)
	server := conn.Peer

	n, err := dops.Write(b, Endpoint(2), []byte("ping"), 4, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var out []byte
	n, err = dops.Read(server, Endpoint(1), &out, 4, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "ping", string(out))

	snap := driver.Metrics().Snapshot()
	assert.Equal(t, uint64(2), snap.Opens)
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(1), snap.ReadOps)
}

func TestDriverShutdownFiresOnDoneAfterAllClosed(t *testing.T) {
	bus := &RecordingBus{}
	driver := New(nil, &InMemoryCopier{}, bus, nil)
	dops := driver.Dispatcher()

	a, _ := dops.Open(Endpoint(1), Ucred{})
	b, _ := dops.Open(Endpoint(2), Ucred{})

	done := false
	driver.Shutdown(func() { done = true })
	assert.False(t, done)

	require.NoError(t, dops.Close(a))
	assert.False(t, done)
	require.NoError(t, dops.Close(b))
	assert.True(t, done)
}

func TestDriverDefaultConfigMatchesCoreDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, cfg.TableSize, 0)
	assert.Greater(t, cfg.RingCapacity, 0)
}

func TestDriverReadNonblockConvertsToEAGAIN(t *testing.T) {
	bus := &RecordingBus{}
	driver := New(&Config{TableSize: 8, RingCapacity: 16, BacklogLen: 2, PathMax: 32, OpenMax: 2}, &InMemoryCopier{}, bus, nil)
	dops := driver.Dispatcher()

	a, _ := dops.Open(Endpoint(1), Ucred{})
	b, _ := dops.Open(Endpoint(2), Ucred{})
	_, err := dops.Ioctl(a, Endpoint(1), CmdBind, BindArgs{Path: "/x"}, 0, 0)
	require.NoError(t, err)
	_, err = dops.Ioctl(a, Endpoint(1), CmdListen, ListenArgs{}, 0, 0)
	require.NoError(t, err)
	_, err = dops.Ioctl(a, Endpoint(1), CmdAccept, AcceptArgs{Owner: Endpoint(1)}, 0, 1)
	assert.ErrorIs(t, err, ErrWouldBlock)
	cres, err := dops.Ioctl(b, Endpoint(2), CmdConnect, ConnectArgs{Path: "/x"}, 0, 2)
	require.NoError(t, err)
	server := cres.(ConnectResult).Peer

	var out []byte
	_, err = dops.Read(server, Endpoint(1), &out, 4, FlagNonblock, 9)
	assert.ErrorIs(t, err, unix.EAGAIN)
}
