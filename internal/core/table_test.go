package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTableOpenAssignsFirstFreeNonZeroSlot(t *testing.T) {
	tbl := NewTable(&Config{TableSize: 4, RingCapacity: 8, BacklogLen: 2, PathMax: 16, OpenMax: 2})

	minor, err := tbl.Open(Endpoint(100), Ucred{PID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, minor)
	assert.True(t, tbl.InUse(minor))

	s := tbl.Get(minor)
	assert.Equal(t, ModeR|ModeW, s.Mode)
	assert.Equal(t, TypeUnset, s.Type)
	assert.Equal(t, NoSlot, s.Peer)
	assert.Equal(t, NoSlot, s.Child)
}

func TestTableOpenReturnsENFILEWhenFull(t *testing.T) {
	tbl := NewTable(&Config{TableSize: 2, RingCapacity: 8, BacklogLen: 2, PathMax: 16, OpenMax: 2})

	_, err := tbl.Open(Endpoint(1), Ucred{})
	require.NoError(t, err)

	_, err = tbl.Open(Endpoint(2), Ucred{})
	assert.ErrorIs(t, err, unix.ENFILE)
}

func TestTableReleaseZeroesSlot(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	minor, err := tbl.Open(Endpoint(1), Ucred{UID: 42})
	require.NoError(t, err)

	require.NoError(t, tbl.Release(minor))
	assert.False(t, tbl.InUse(minor))

	s := tbl.Get(minor)
	assert.Equal(t, SlotFree, s.State)
	assert.Equal(t, Ucred{}, s.Cred)
}

func TestTableReleaseOnFreeSlotIsInvalidArgument(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	assert.ErrorIs(t, tbl.Release(1), unix.EINVAL)
}

func TestTableBacklogFIFO(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	listener, _ := tbl.Open(Endpoint(1), Ucred{})

	assert.True(t, tbl.PushBacklog(listener, 5))
	assert.True(t, tbl.PushBacklog(listener, 6))
	assert.True(t, tbl.BacklogHasEntries(listener))

	assert.Equal(t, 5, tbl.PopBacklogFront(listener))
	assert.Equal(t, 6, tbl.PopBacklogFront(listener))
	assert.Equal(t, NoSlot, tbl.PopBacklogFront(listener))
	assert.False(t, tbl.BacklogHasEntries(listener))
}

func TestTableBacklogFullRejectsPush(t *testing.T) {
	tbl := NewTable(&Config{TableSize: 8, RingCapacity: 8, BacklogLen: 1, PathMax: 16, OpenMax: 2})
	listener, _ := tbl.Open(Endpoint(1), Ucred{})

	assert.True(t, tbl.PushBacklog(listener, 2))
	assert.False(t, tbl.PushBacklog(listener, 3))
}

func TestTableReleaseChildFreesPreopenedSlotAndClearsReservation(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	listener, _ := tbl.Open(Endpoint(1), Ucred{})
	child, _ := tbl.Open(Endpoint(2), Ucred{})
	tbl.SetChild(listener, child)

	tbl.ReleaseChild(listener)

	assert.Equal(t, NoSlot, tbl.Get(listener).Child)
	assert.Equal(t, SlotFree, tbl.Get(child).State)
}

func TestTableReleaseChildIsNoopWithoutReservation(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	listener, _ := tbl.Open(Endpoint(1), Ucred{})

	assert.NotPanics(t, func() { tbl.ReleaseChild(listener) })
	assert.Equal(t, NoSlot, tbl.Get(listener).Child)
}

func TestTableFindListenerAndDatagramPeerMatchByPath(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	listener, _ := tbl.Open(Endpoint(1), Ucred{})
	tbl.SetAddr(listener, Address{Path: "/srv"})
	tbl.SetListening(listener, true)

	assert.Equal(t, listener, tbl.FindListener(Address{Path: "/srv"}))
	assert.Equal(t, NoSlot, tbl.FindListener(Address{Path: "/other"}))

	dgram, _ := tbl.Open(Endpoint(2), Ucred{})
	tbl.Get(dgram).Type = TypeDgram
	tbl.SetAddr(dgram, Address{Path: "/dg"})

	assert.Equal(t, dgram, tbl.FindDatagramPeer(Address{Path: "/dg"}))
	assert.Equal(t, NoSlot, tbl.FindDatagramPeer(Address{Path: "/nope"}))
}

func TestTableAncillaryStageAndDrain(t *testing.T) {
	tbl := NewTable(DefaultConfig())
	minor, _ := tbl.Open(Endpoint(1), Ucred{})

	tbl.StageAncillary(minor, []int{3, 4})
	fds := tbl.DrainAncillary(minor)

	assert.Equal(t, []int{3, 4}, fds)
	assert.Nil(t, tbl.DrainAncillary(minor))
}
