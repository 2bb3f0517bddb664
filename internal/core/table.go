package core

import (
	"fmt"

	"github.com/go-udsock/udsock/internal/constants"
	"golang.org/x/sys/unix"
)

// Config sizes a Table at construction time (spec §6, "Constants", made
// runtime-configurable per SPEC_FULL Open Question 3).
type Config struct {
	// TableSize is N, the number of slots including the reserved slot 0.
	TableSize int
	// RingCapacity is BUF_CAP, the per-socket ring buffer size in bytes.
	RingCapacity int
	// BacklogLen is SOMAXCONN, the listen backlog length.
	BacklogLen int
	// PathMax bounds datagram address matching.
	PathMax int
	// OpenMax is the number of ancillary FD slots per socket.
	OpenMax int
}

// DefaultConfig returns the sizing used by cmd/udsockd and the test
// suite: small and fast, not production-scale.
func DefaultConfig() *Config {
	return &Config{
		TableSize:    constants.DefaultTableSize,
		RingCapacity: constants.DefaultRingCapacity,
		BacklogLen:   constants.DefaultBacklogLen,
		PathMax:      constants.DefaultPathMax,
		OpenMax:      constants.DefaultOpenMax,
	}
}

// Table is the fixed-size socket table (spec §2 item 1, §3, §4.1). It is
// the only shared state in the core; all access is serialized by the
// single-threaded dispatch (spec §5).
type Table struct {
	cfg   Config
	slots []Slot
}

// NewTable allocates a Table per cfg. Slot 0 is reserved for the device
// itself and is never returned by Open.
func NewTable(cfg *Config) *Table {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t := &Table{cfg: *cfg, slots: make([]Slot, cfg.TableSize)}
	for i := range t.slots {
		t.slots[i].Child = NoSlot
	}
	return t
}

// Config returns the table's sizing configuration.
func (t *Table) Config() Config { return t.cfg }

// Len returns N, the table size.
func (t *Table) Len() int { return len(t.slots) }

func (t *Table) valid(minor int) bool {
	return minor > 0 && minor < len(t.slots)
}

// Get returns the slot at minor. It panics on an out-of-range minor;
// callers must validate with a dispatcher-level NoSuchDevice check
// first (spec §7) — Get is an internal accessor, not the dispatcher
// entry point.
func (t *Table) Get(minor int) *Slot {
	if minor < 0 || minor >= len(t.slots) {
		panic(fmt.Sprintf("core: slot index %d out of range [0,%d)", minor, len(t.slots)))
	}
	return &t.slots[minor]
}

// Valid reports whether minor addresses a slot other than the reserved
// device slot 0.
func (t *Table) Valid(minor int) bool { return t.valid(minor) }

// InUse reports whether minor is currently allocated.
func (t *Table) InUse(minor int) bool {
	return t.valid(minor) && t.slots[minor].State == SlotInUse
}

// InUseCount returns the number of INUSE slots, for the SIGTERM
// countdown lifecycle (spec §6).
func (t *Table) InUseCount() int {
	n := 0
	for i := 1; i < len(t.slots); i++ {
		if t.slots[i].State == SlotInUse {
			n++
		}
	}
	return n
}

// Open claims the first FREE slot in [1,N), assigns it a ring buffer,
// and initializes it to spec §4.1 defaults. Returns ENFILE if no slot
// is free.
func (t *Table) Open(owner Endpoint, cred Ucred) (int, error) {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.State == SlotFree {
			s.State = SlotInUse
			s.Owner = owner
			s.Type = TypeUnset
			s.Mode = ModeR | ModeW
			s.Peer = NoSlot
			s.Child = NoSlot
			s.Backlog = make([]int, 0, t.cfg.BacklogLen)
			s.BacklogCap = t.cfg.BacklogLen
			s.Suspended = SuspNone
			s.Cred = cred
			s.buf = make([]byte, t.cfg.RingCapacity)
			return i, nil
		}
	}
	return NoSlot, unix.ENFILE
}

// Release returns minor to FREE without touching peer/backlog graph
// linkage; Close (close.go) performs the full teardown sequence and
// calls this last.
func (t *Table) Release(minor int) error {
	if !t.valid(minor) {
		return unix.ENXIO
	}
	s := &t.slots[minor]
	if s.State != SlotInUse {
		return unix.EINVAL
	}
	s.zero()
	s.Child = NoSlot
	return nil
}

// Link connects two slots as a fully-connected pair (spec §3 "Connected
// pair"). A linked slot whose type is still TypeUnset becomes
// TypeStream.
func (t *Table) Link(a, b int) {
	t.slots[a].Peer = b
	t.slots[b].Peer = a
	for _, i := range []int{a, b} {
		if t.slots[i].Type == TypeUnset {
			t.slots[i].Type = TypeStream
		}
	}
}

// SetAddr records the bound address for minor.
func (t *Table) SetAddr(minor int, addr Address) {
	t.slots[minor].Addr = addr
}

// SetListening sets or clears minor's listening state. The backlog
// bound is set separately, by SetBacklogCap.
func (t *Table) SetListening(minor int, listening bool) {
	t.slots[minor].Listening = listening
}

// SetBacklogCap bounds minor's own backlog length to cap, clamped to the
// table's configured SOMAXCONN (spec §6 "Constants"). A non-positive cap
// leaves the table-wide default in place. This is listen(2)'s backlog
// argument (spec.md §1).
func (t *Table) SetBacklogCap(minor int, cap int) {
	if cap <= 0 || cap > t.cfg.BacklogLen {
		cap = t.cfg.BacklogLen
	}
	t.slots[minor].BacklogCap = cap
}

// FindListener returns the slot index of the first INUSE, listening
// slot bound to addr, or NoSlot if none.
func (t *Table) FindListener(addr Address) int {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.State == SlotInUse && s.Listening && s.Addr.matches(addr, t.cfg.PathMax) {
			return i
		}
	}
	return NoSlot
}

// FindDatagramPeer implements the spec §4.4 step 4 DGRAM target lookup:
// a linear scan for the first INUSE DGRAM slot bound to addr.
func (t *Table) FindDatagramPeer(addr Address) int {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.State == SlotInUse && s.Type == TypeDgram && s.Addr.matches(addr, t.cfg.PathMax) {
			return i
		}
	}
	return NoSlot
}

// PushBacklog appends client to listener's backlog. Returns false if the
// backlog is already at capacity (caller surfaces ECONNREFUSED).
func (t *Table) PushBacklog(listener, client int) bool {
	s := &t.slots[listener]
	if len(s.Backlog) >= s.BacklogCap {
		return false
	}
	s.Backlog = append(s.Backlog, client)
	return true
}

// PopBacklogFront removes and returns the first backlog entry, or
// NoSlot if empty.
func (t *Table) PopBacklogFront(listener int) int {
	s := &t.slots[listener]
	if len(s.Backlog) == 0 {
		return NoSlot
	}
	client := s.Backlog[0]
	s.Backlog = append(s.Backlog[:0], s.Backlog[1:]...)
	return client
}

// RemoveBacklogEntry removes client from listener's backlog if present.
func (t *Table) RemoveBacklogEntry(listener, client int) {
	s := &t.slots[listener]
	for i, v := range s.Backlog {
		if v == client {
			s.Backlog = append(s.Backlog[:i], s.Backlog[i+1:]...)
			return
		}
	}
}

// BacklogHasEntries reports whether listener has any pending connector.
func (t *Table) BacklogHasEntries(listener int) bool {
	return len(t.slots[listener].Backlog) > 0
}

// SetChild records the slot pre-reserved by accept for a pending
// connector.
func (t *Table) SetChild(listener, child int) {
	t.slots[listener].Child = child
}

// ClearChild clears a listener's pre-reserved accept slot.
func (t *Table) ClearChild(listener int) {
	t.slots[listener].Child = NoSlot
}

// ReleaseChild undoes a listener's accept reservation (spec §4.5 cancel
// table, ACCEPT case: "accept reservation undone"). Accept pre-opens the
// server-side slot before parking, recording it in the listener's own
// Child field (DESIGN.md's resolution of the spec's ambiguous "any
// other slot whose child == minor" wording); cancelling that parked
// accept must both clear the reservation and free the pre-opened slot,
// since nothing else will ever reference or close it.
func (t *Table) ReleaseChild(listener int) {
	s := &t.slots[listener]
	child := s.Child
	s.Child = NoSlot
	if child != NoSlot && t.valid(child) && t.slots[child].State == SlotInUse {
		t.slots[child].zero()
		t.slots[child].Child = NoSlot
	}
}

// SetMode ORs bits into minor's mode (e.g. re-enabling a half after
// shutdown would never happen per POSIX, but the setter stays generic).
func (t *Table) SetMode(minor int, bits Mode) {
	t.slots[minor].Mode |= bits
}

// ClearMode clears bits from minor's mode (shutdown(how), SPEC_FULL
// ancillary feature).
func (t *Table) ClearMode(minor int, bits Mode) {
	t.slots[minor].Mode &^= bits
}

// StageAncillary stores fds in minor's own ancillary slot, replacing
// whatever was staged there. PerformWrite does not read or transfer
// them; DrainAncillary on the same minor returns them.
func (t *Table) StageAncillary(minor int, fds []int) {
	t.slots[minor].Ancillary = fds
}

// DrainAncillary returns and clears whatever ancillary FDs are staged on
// minor.
func (t *Table) DrainAncillary(minor int) []int {
	s := &t.slots[minor]
	fds := s.Ancillary
	s.Ancillary = nil
	return fds
}

// Credentials returns the captured SO_PEERCRED-style credentials for
// minor.
func (t *Table) Credentials(minor int) Ucred {
	return t.slots[minor].Cred
}
