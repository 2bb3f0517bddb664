// Package core implements the socket table, ring buffers, data path,
// suspension/wakeup, and select/readiness computation that together form
// the socket core. It is pure, single-threaded state-machine logic with
// no kernel dependency: every externally-owned concern (control-plane
// decoding, cross-endpoint copying, reply delivery, logging) is pinned
// as an interface and supplied by internal/ctrl, internal/dispatch, and
// cmd/udsockd.
package core

import "github.com/go-udsock/udsock/internal/constants"

// SlotState is FREE or INUSE (spec §3).
type SlotState int

const (
	SlotFree SlotState = iota
	SlotInUse
)

// SockType is the socket's wire type.
type SockType int

const (
	TypeUnset SockType = iota
	TypeStream
	TypeSeqpacket
	TypeDgram
)

func (t SockType) String() string {
	switch t {
	case TypeStream:
		return "STREAM"
	case TypeSeqpacket:
		return "SEQPACKET"
	case TypeDgram:
		return "DGRAM"
	default:
		return "UNSET"
	}
}

// Mode is the bitset of halves not yet shut down.
type Mode uint8

const (
	ModeR Mode = 1 << iota
	ModeW
)

// SuspKind is the sum type {None, Read, Write, Connect, Accept}. It
// carries no payload of its own; the parked request's parameters live in
// the slot's susp_* fields (spec §9, "tagged state").
type SuspKind int

const (
	SuspNone SuspKind = iota
	SuspRead
	SuspWrite
	SuspConnect
	SuspAccept
)

func (k SuspKind) String() string {
	switch k {
	case SuspRead:
		return "READ"
	case SuspWrite:
		return "WRITE"
	case SuspConnect:
		return "CONNECT"
	case SuspAccept:
		return "ACCEPT"
	default:
		return "NONE"
	}
}

// Ops is the select/readiness bitset.
type Ops uint8

const (
	OpRead Ops = 1 << iota
	OpWrite
	OpErr
	OpNotify
)

func (o Ops) Has(bit Ops) bool { return o&bit != 0 }

// Endpoint identifies the owning or watching process. It is opaque to
// the core; only the dispatcher/ctrl collaborators interpret it.
type Endpoint int32

// Grant is the opaque cross-process memory handle a Copier resolves.
// The core never inspects it.
type Grant any

// Address is a bound UNIX-domain socket address. Comparison is by Path,
// truncated to PATH_MAX the way the spec's strncmp-over-PATH_MAX match
// is described (§4.4 step 4).
type Address struct {
	Path string
}

func (a Address) matches(b Address, pathMax int) bool {
	ap, bp := a.Path, b.Path
	if len(ap) > pathMax {
		ap = ap[:pathMax]
	}
	if len(bp) > pathMax {
		bp = bp[:pathMax]
	}
	return ap == bp
}

// Ucred is the SO_PEERCRED-style credential snapshot captured at Open.
type Ucred struct {
	PID int32
	UID uint32
	GID uint32
}

// NoSlot is the sentinel meaning "no peer / no child / empty backlog
// entry" (spec §3: peer == NONE, child field absent, backlog == -1).
const NoSlot = constants.NoSlot

// Slot is one entry of the socket table (spec §3).
type Slot struct {
	State SlotState
	Owner Endpoint
	Type  SockType
	Mode  Mode

	buf  []byte
	pos  int
	size int

	Peer       int
	Listening  bool
	Backlog    []int
	BacklogCap int
	Child      int

	Addr   Address
	Source Address
	Target Address

	Err error

	Ancillary []int

	Suspended SuspKind
	SuspEndpt Endpoint
	SuspGrant Grant
	SuspSize  int
	SuspID    uint64

	SelEndpt Endpoint
	SelOps   Ops

	Cred Ucred
}

// Size returns the slot's current ring buffer byte count.
func (s *Slot) Size() int { return s.size }

// Pos returns the slot's current ring buffer tail offset.
func (s *Slot) Pos() int { return s.pos }

// zero resets a slot back to its FREE-state invariant (spec §3: "state
// == FREE ⇒ all other fields are zeroed; buf is unmapped").
func (s *Slot) zero() {
	*s = Slot{}
}
