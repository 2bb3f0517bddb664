package ctrl

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/go-udsock/udsock/internal/core"
	"github.com/go-udsock/udsock/internal/logging"
)

// Controller drives internal/core's bind/connect/listen/accept/
// shutdown/getsockopt/ancillary-FD/credentials hooks (spec.md §1: "the
// semantics of bind, connect, listen, accept, shutdown, getsockopt,
// ancillary FD passing, and credentials are delegated to a
// control/ioctl collaborator"). One method per control operation,
// mirroring the teacher's Controller in internal/ctrl/control.go.
type Controller struct {
	engine *core.Engine
	cfg    Config
	logger *logging.Logger
}

// NewController wires a Controller to the engine whose Table it
// mutates and whose Suspend/Unsuspend it drives for CONNECT/ACCEPT.
func NewController(engine *core.Engine, cfg *Config) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Controller{engine: engine, cfg: *cfg, logger: logging.Default()}
}

// SetLogger overrides the controller's logger.
func (c *Controller) SetLogger(l *logging.Logger) { c.logger = l }

func (c *Controller) slot(minor int) (*core.Slot, error) {
	if !c.engine.Table.Valid(minor) {
		return nil, unix.ENXIO
	}
	if !c.engine.Table.InUse(minor) {
		return nil, unix.EINVAL
	}
	return c.engine.Table.Get(minor), nil
}

// Bind assigns path to minor's address.
func (c *Controller) Bind(minor int, path string) error {
	s, err := c.slot(minor)
	if err != nil {
		return errors.Wrapf(err, "ctrl: bind minor %d", minor)
	}
	if s.Addr.Path != "" {
		return errors.Wrapf(unix.EINVAL, "ctrl: bind minor %d: already bound to %q", minor, s.Addr.Path)
	}
	c.engine.Table.SetAddr(minor, core.Address{Path: path})
	c.logger.ForSlot(minor).With("path", path).Debug("ctrl: bound")
	return nil
}

// Listen marks minor as a listener. backlog<=0 uses the controller's
// default (spec.md §1 delegates listen(2)'s semantics here; the core
// only owns the fixed-size backlog array it is applied against).
func (c *Controller) Listen(minor int, backlog int) error {
	if _, err := c.slot(minor); err != nil {
		return errors.Wrapf(err, "ctrl: listen minor %d", minor)
	}
	if backlog <= 0 {
		backlog = c.cfg.DefaultBacklog
	}
	c.engine.Table.SetBacklogCap(minor, backlog)
	c.engine.Table.SetListening(minor, true)
	c.logger.ForSlot(minor).With("backlog", backlog).Debug("ctrl: listening")
	return nil
}

// Connect links client to the listener bound at path. If an Accept is
// already parked waiting for a connector (the listener's suspension is
// ACCEPT), the connect completes immediately by handing over the
// listener's pre-reserved child slot. Otherwise client is queued on the
// listener's backlog and parked with SuspConnect — Connect calls
// core.Suspend itself before returning ErrWouldBlock, so the caller must
// not suspend client a second time.
func (c *Controller) Connect(client int, path string, endpt core.Endpoint, id uint64) (peer int, err error) {
	cs, err := c.slot(client)
	if err != nil {
		return 0, errors.Wrapf(err, "ctrl: connect client %d", client)
	}

	listener := c.engine.Table.FindListener(core.Address{Path: path})
	if listener == core.NoSlot {
		return 0, errors.Wrapf(unix.ECONNREFUSED, "ctrl: connect %q: no listener", path)
	}
	ls := c.engine.Table.Get(listener)

	opLog := c.logger.ForSlot(client).WithOp(id, "CONNECT")

	if ls.Suspended == core.SuspAccept && ls.Child != core.NoSlot {
		child := ls.Child
		c.engine.Table.Link(client, child)
		c.engine.Unsuspend(listener) // delivers the parked accept its child
		c.engine.Table.ClearChild(listener)
		opLog.With("listener", listener, "child", child).Debug("ctrl: connect fast path")
		return child, nil
	}

	if !c.engine.Table.PushBacklog(listener, client) {
		return 0, errors.Wrapf(unix.ECONNREFUSED, "ctrl: connect %q: backlog full", path)
	}
	cs.Peer = listener // connecting pair: slots[client].peer==listener, slots[listener].peer==NONE
	c.engine.Suspend(client, core.SuspConnect, endpt, nil, 0, id)
	opLog.With("listener", listener).Debug("ctrl: connect queued on backlog")
	return 0, core.ErrWouldBlock
}

// Accept preallocates the server-side slot for the next connection on
// listener. If a connector is already backlogged it links immediately
// and returns the new slot; otherwise it parks with SuspAccept, having
// pre-reserved the child slot in listener.Child so Connect's fast path
// and Cancel's cleanup both have something to find.
func (c *Controller) Accept(listener int, owner core.Endpoint, cred core.Ucred, endpt core.Endpoint, id uint64) (child int, err error) {
	ls, err := c.slot(listener)
	if err != nil {
		return 0, errors.Wrapf(err, "ctrl: accept listener %d", listener)
	}
	if !ls.Listening {
		return 0, errors.Wrapf(unix.EINVAL, "ctrl: accept: minor %d is not listening", listener)
	}

	child, err = c.engine.Table.Open(owner, cred)
	if err != nil {
		return 0, errors.Wrapf(err, "ctrl: accept listener %d: open child", listener)
	}

	opLog := c.logger.ForSlot(listener).WithOp(id, "ACCEPT")

	if connector := c.engine.Table.PopBacklogFront(listener); connector != core.NoSlot {
		c.engine.Table.Link(connector, child)
		if c.engine.Table.Get(connector).Suspended == core.SuspConnect {
			c.engine.Unsuspend(connector)
		}
		opLog.With("connector", connector, "child", child).Debug("ctrl: accept fast path")
		return child, nil
	}

	c.engine.Table.SetChild(listener, child)
	c.engine.Suspend(listener, core.SuspAccept, endpt, nil, 0, id)
	opLog.With("child", child).Debug("ctrl: accept parked")
	return 0, core.ErrWouldBlock
}

// Shutdown clears the requested half(s) of minor's mode (SPEC_FULL
// supplemental feature, from the MINIX driver's do_getsockopt/shutdown
// handling the distillation's Non-goals do not exclude).
func (c *Controller) Shutdown(minor int, how How) error {
	if _, err := c.slot(minor); err != nil {
		return errors.Wrapf(err, "ctrl: shutdown minor %d", minor)
	}
	switch how {
	case ShutRD:
		c.engine.Table.ClearMode(minor, core.ModeR)
	case ShutWR:
		c.engine.Table.ClearMode(minor, core.ModeW)
	case ShutRDWR:
		c.engine.Table.ClearMode(minor, core.ModeR|core.ModeW)
	}
	c.logger.ForSlot(minor).With("how", how).Debug("ctrl: shutdown")
	return nil
}

// GetSockOpt implements SO_PEERCRED: the credentials of the connected
// peer, or ENOTCONN if minor has none.
func (c *Controller) GetSockOpt(minor int, opt SockOpt) (core.Ucred, error) {
	s, err := c.slot(minor)
	if err != nil {
		return core.Ucred{}, errors.Wrapf(err, "ctrl: getsockopt minor %d", minor)
	}
	if opt != SOPeerCred {
		return core.Ucred{}, errors.Wrapf(unix.EINVAL, "ctrl: getsockopt minor %d: unknown option", minor)
	}
	if s.Peer == core.NoSlot {
		return core.Ucred{}, errors.Wrapf(unix.ENOTCONN, "ctrl: getsockopt minor %d: not connected", minor)
	}
	return c.engine.Table.Credentials(s.Peer), nil
}

// SendFDs stages fds in minor's own ancillary slot (spec §3
// "ancillary"; SPEC_FULL ancillary FD passing). Writes do not move
// staged fds to the peer; they stay on minor until RecvFDs(minor) or
// Close(minor).
func (c *Controller) SendFDs(minor int, fds []int) error {
	if _, err := c.slot(minor); err != nil {
		return errors.Wrapf(err, "ctrl: sendfds minor %d", minor)
	}
	if len(fds) > c.engine.Table.Config().OpenMax {
		return errors.Wrapf(unix.EINVAL, "ctrl: sendfds minor %d: too many fds", minor)
	}
	c.engine.Table.StageAncillary(minor, fds)
	return nil
}

// RecvFDs drains whatever ancillary FDs are staged in minor's own slot,
// i.e. those a SendFDs on the same minor stored; fds staged on the peer
// are not read.
func (c *Controller) RecvFDs(minor int) ([]int, error) {
	if _, err := c.slot(minor); err != nil {
		return nil, errors.Wrapf(err, "ctrl: recvfds minor %d", minor)
	}
	return c.engine.Table.DrainAncillary(minor), nil
}

// Credentials returns minor's own captured SO_PEERCRED-style
// credentials (captured at Open).
func (c *Controller) Credentials(minor int) (core.Ucred, error) {
	s, err := c.slot(minor)
	if err != nil {
		return core.Ucred{}, errors.Wrapf(err, "ctrl: credentials minor %d", minor)
	}
	return s.Cred, nil
}

// ReleaseFDs implements core.AncillaryReleaser so the engine can hand
// back FDs abandoned by a closing slot (spec §4.6 item 3). udsock has
// no real FD table of its own to release into — this is a same-process
// simulation — so this simply logs the drop; a production embedder
// backed by real file descriptors would close them here.
func (c *Controller) ReleaseFDs(fds []int) {
	if len(fds) == 0 {
		return
	}
	c.logger.With("fds", len(fds)).Debug("ctrl: releasing abandoned ancillary fds")
}
