// Package dispatch implements the Dispatcher Glue (spec.md §2 item 6,
// §4 item 6, §5, §6, §7): the seven character-device entry points that
// validate the minor, thread the request through internal/core, and
// handle NONBLOCK conversion and suspension replies. It also owns the
// SIGTERM countdown lifecycle and the Logger/Observer wiring, the way
// the teacher's Device in backend.go owns its queue runners, its
// controller, and its metrics observer.
package dispatch

import (
	"golang.org/x/sys/unix"

	"github.com/go-udsock/udsock/internal/core"
	"github.com/go-udsock/udsock/internal/ctrl"
	"github.com/go-udsock/udsock/internal/interfaces"
	"github.com/go-udsock/udsock/internal/logging"
)

// Flags carries the caller's per-call request flags (spec §6).
type Flags uint8

const FlagNonblock Flags = 1 << 0

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// DeviceOps is the character-device contract the core registers (spec
// §6): "open, close, read, write, ioctl, cancel, select". It is the
// out-of-scope dispatch harness's view of the driver, pinned here as
// an interface; cmd/udsockd drives it directly without a real device
// node.
type DeviceOps interface {
	Open(owner core.Endpoint, cred core.Ucred) (minor int, err error)
	Close(minor int) error
	Read(minor int, endpt core.Endpoint, grant core.Grant, n int, flags Flags, id uint64) (int, error)
	Write(minor int, endpt core.Endpoint, grant core.Grant, n int, flags Flags, id uint64) (int, error)
	Ioctl(minor int, endpt core.Endpoint, cmd IoctlCmd, arg any, flags Flags, id uint64) (any, error)
	Cancel(minor int, endpt core.Endpoint, id uint64)
	Select(minor int, ops core.Ops, endpt core.Endpoint) core.Ops
}

var _ DeviceOps = (*Dispatcher)(nil)
var _ core.Bus = (*Dispatcher)(nil)

// Dispatcher is the single-threaded entry point the embedding harness
// drives. It owns the core Engine, the ctrl Controller, and the
// downstream reply sink (harness) the core's deferred replies and
// select notifications are forwarded to.
type Dispatcher struct {
	engine  *core.Engine
	ctrl    *ctrl.Controller
	harness core.Bus

	logger   *logging.Logger
	observer interfaces.Observer

	shuttingDown bool
	exitLeft     int
	terminate    func()
}

// New constructs a Dispatcher. harness is the out-of-scope
// character-device dispatch harness's reply sink; copier is the
// out-of-scope cross-endpoint safe-copy primitive. observer and logger
// may be nil, in which case a no-op observer and the package-wide
// default logger are used.
func New(cfg *core.Config, copier core.Copier, harness core.Bus, logger *logging.Logger, observer interfaces.Observer) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	d := &Dispatcher{harness: harness, logger: logger, observer: observer}
	d.engine = core.NewEngine(cfg, copier, d)
	d.engine.Observer = observer
	d.ctrl = ctrl.NewController(d.engine, nil)
	d.ctrl.SetLogger(logger)
	d.engine.Ancillary = d.ctrl
	return d
}

// SetTerminateHook registers the callback invoked once shutdown has
// been requested and the last INUSE slot has closed (spec §6).
func (d *Dispatcher) SetTerminateHook(f func()) { d.terminate = f }

// OnInit is the system-event framework's init callback (spec §6: "On
// init, the slot table is zeroed"). The Table is already zeroed by
// construction; OnInit exists so an embedder has a named hook to call
// at startup, mirroring the teacher's queue runner lifecycle.
func (d *Dispatcher) OnInit() {
	d.logger.Info("dispatch: initialized", "slots", d.engine.Table.Len())
}

// HandleSignal implements the §6 lifecycle: SIGTERM begins the exit
// countdown; every other signal is ignored.
func (d *Dispatcher) HandleSignal(sig unix.Signal) {
	if sig != unix.SIGTERM {
		return
	}
	d.BeginShutdown()
}

// BeginShutdown starts the SIGTERM countdown: exit_left is set to the
// current INUSE count, decremented by each Close, and the terminate
// hook fires when it reaches zero (spec §6).
func (d *Dispatcher) BeginShutdown() {
	if d.shuttingDown {
		return
	}
	d.shuttingDown = true
	d.exitLeft = d.engine.Table.InUseCount()
	d.logger.Info("dispatch: shutdown requested", "exit_left", d.exitLeft)
	if d.exitLeft == 0 {
		d.fireTerminate()
	}
}

func (d *Dispatcher) fireTerminate() {
	if d.terminate != nil {
		d.terminate()
	}
}

// TaskReply implements core.Bus, forwarding the core's deferred
// completion to the downstream harness.
func (d *Dispatcher) TaskReply(endpt core.Endpoint, id uint64, result int, err error) {
	d.logger.WithOp(id, "reply").WithError(err).Debug("dispatch: task reply", "endpt", endpt, "result", result)
	d.harness.TaskReply(endpt, id, result, err)
}

// SelectReply implements core.Bus, forwarding a readiness notification
// to the downstream harness.
func (d *Dispatcher) SelectReply(selEndpt core.Endpoint, minor int, ops core.Ops) {
	d.harness.SelectReply(selEndpt, minor, ops)
}

// Open implements DeviceOps.Open (spec §4.1).
func (d *Dispatcher) Open(owner core.Endpoint, cred core.Ucred) (int, error) {
	minor, err := d.engine.Table.Open(owner, cred)
	if err != nil {
		return 0, err
	}
	d.observer.ObserveOpen(minor)
	return minor, nil
}

// Close implements DeviceOps.Close (spec §4.6), and drives the §6
// shutdown countdown.
func (d *Dispatcher) Close(minor int) error {
	if err := d.engine.Close(minor); err != nil {
		d.logger.ForSlot(minor).WithError(err).Debug("dispatch: close failed")
		return err
	}
	d.logger.ForSlot(minor).Debug("dispatch: closed")
	d.observer.ObserveClose(minor)
	if d.shuttingDown {
		d.exitLeft--
		if d.exitLeft <= 0 {
			d.fireTerminate()
		}
	}
	return nil
}

// Read implements DeviceOps.Read (spec §4.3, §4.5).
func (d *Dispatcher) Read(minor int, endpt core.Endpoint, grant core.Grant, n int, flags Flags, id uint64) (int, error) {
	result, err := d.engine.PerformRead(minor, endpt, grant, n, false)
	result, err = d.parkOrConvert(minor, core.SuspRead, "READ", endpt, grant, n, id, flags, result, err)
	d.observer.ObserveRead(minor, result, err)
	return result, err
}

// Write implements DeviceOps.Write (spec §4.4, §4.5).
func (d *Dispatcher) Write(minor int, endpt core.Endpoint, grant core.Grant, n int, flags Flags, id uint64) (int, error) {
	result, err := d.engine.PerformWrite(minor, endpt, grant, n, false)
	result, err = d.parkOrConvert(minor, core.SuspWrite, "WRITE", endpt, grant, n, id, flags, result, err)
	d.observer.ObserveWrite(minor, result, err)
	return result, err
}

// parkOrConvert implements spec §4.5: on ErrWouldBlock, park the
// request; if the caller asked for NONBLOCK, immediately cancel that
// same parked request and convert the reply (CONNECT → EINPROGRESS,
// anything else → EAGAIN) instead of returning the "don't reply yet"
// sentinel.
func (d *Dispatcher) parkOrConvert(minor int, kind core.SuspKind, op string, endpt core.Endpoint, grant core.Grant, n int, id uint64, flags Flags, result int, err error) (int, error) {
	if err != core.ErrWouldBlock {
		return result, err
	}
	opLog := d.logger.ForSlot(minor).WithOp(id, op)
	d.engine.Suspend(minor, kind, endpt, grant, n, id)
	if converted, cerr, ok := d.convertIfNonblock(minor, endpt, id, flags, kind); ok {
		opLog.WithError(cerr).Debug("dispatch: nonblock conversion")
		return converted, cerr
	}
	opLog.Debug("dispatch: parked")
	return 0, core.ErrWouldBlock
}

// convertIfNonblock cancels the just-parked request on minor and
// converts the resulting EINTR into EAGAIN (or EINPROGRESS for a
// parked CONNECT) when flags requested NONBLOCK. ok is false when
// flags did not request NONBLOCK, in which case the request stays
// parked.
func (d *Dispatcher) convertIfNonblock(minor int, endpt core.Endpoint, id uint64, flags Flags, kind core.SuspKind) (result int, err error, ok bool) {
	if !flags.Has(FlagNonblock) {
		return 0, nil, false
	}
	if _, cancelled := d.engine.CancelLocal(minor, endpt, id); !cancelled {
		return 0, nil, false
	}
	if kind == core.SuspConnect {
		return 0, unix.EINPROGRESS, true
	}
	return 0, unix.EAGAIN, true
}

// Cancel implements DeviceOps.Cancel (spec §4.5).
func (d *Dispatcher) Cancel(minor int, endpt core.Endpoint, id uint64) {
	d.logger.ForSlot(minor).WithOp(id, "cancel").Debug("dispatch: cancel requested")
	d.engine.Cancel(minor, endpt, id)
	d.observer.ObserveCancel(minor)
}

// Select implements DeviceOps.Select (spec §4.7).
func (d *Dispatcher) Select(minor int, ops core.Ops, endpt core.Endpoint) core.Ops {
	return d.engine.Select(minor, ops, endpt)
}

// Engine exposes the underlying core Engine for callers (e.g.
// cmd/udsockd) that need direct Table access for diagnostics.
func (d *Dispatcher) Engine() *core.Engine { return d.engine }

// Controller exposes the underlying ctrl.Controller.
func (d *Dispatcher) Controller() *ctrl.Controller { return d.ctrl }

type noopObserver struct{}

func (noopObserver) ObserveOpen(int)               {}
func (noopObserver) ObserveClose(int)               {}
func (noopObserver) ObserveRead(int, int, error)    {}
func (noopObserver) ObserveWrite(int, int, error)   {}
func (noopObserver) ObserveSuspend(int)             {}
func (noopObserver) ObserveWakeup(int)              {}
func (noopObserver) ObserveCancel(int)              {}
func (noopObserver) ObserveReset(int)               {}
func (noopObserver) ObserveDatagramDrop(int)        {}
