// Package udsock provides the public API for embedding the
// UNIX-domain-socket IPC core described in internal/core behind a
// character-device-shaped dispatch loop, the way github.com/ehrlich-b/
// go-ublk's root package wraps its internal queue/ctrl packages behind
// Device/CreateAndServe.
package udsock

import (
	"github.com/go-udsock/udsock/internal/core"
	"github.com/go-udsock/udsock/internal/ctrl"
	"github.com/go-udsock/udsock/internal/dispatch"
	"github.com/go-udsock/udsock/internal/interfaces"
	"github.com/go-udsock/udsock/internal/logging"
)

// Re-exported types so an embedder never has to import an internal
// package directly (internal/core, internal/ctrl, internal/dispatch
// are unreachable from outside this module).
type (
	Endpoint = core.Endpoint
	Ucred    = core.Ucred
	Grant    = core.Grant
	Copier   = core.Copier
	Bus      = core.Bus
	Ops      = core.Ops
	Flags    = dispatch.Flags
	IoctlCmd = dispatch.IoctlCmd
	Observer = interfaces.Observer
	Logger   = logging.Logger
	ShutdownHow = ctrl.How
	SockOpt     = ctrl.SockOpt

	BindArgs          = dispatch.BindArgs
	ListenArgs        = dispatch.ListenArgs
	ConnectArgs       = dispatch.ConnectArgs
	ConnectResult     = dispatch.ConnectResult
	AcceptArgs        = dispatch.AcceptArgs
	AcceptResult      = dispatch.AcceptResult
	ShutdownArgs      = dispatch.ShutdownArgs
	GetSockOptArgs    = dispatch.GetSockOptArgs
	GetSockOptResult  = dispatch.GetSockOptResult
	SendFDsArgs       = dispatch.SendFDsArgs
	RecvFDsResult     = dispatch.RecvFDsResult
	CredentialsResult = dispatch.CredentialsResult
)

const (
	OpRead   = core.OpRead
	OpWrite  = core.OpWrite
	OpErr    = core.OpErr
	OpNotify = core.OpNotify

	FlagNonblock = dispatch.FlagNonblock

	CmdBind        = dispatch.CmdBind
	CmdListen      = dispatch.CmdListen
	CmdConnect     = dispatch.CmdConnect
	CmdAccept      = dispatch.CmdAccept
	CmdShutdown    = dispatch.CmdShutdown
	CmdGetSockOpt  = dispatch.CmdGetSockOpt
	CmdSendFDs     = dispatch.CmdSendFDs
	CmdRecvFDs     = dispatch.CmdRecvFDs
	CmdCredentials = dispatch.CmdCredentials

	ShutRD   = ctrl.ShutRD
	ShutWR   = ctrl.ShutWR
	ShutRDWR = ctrl.ShutRDWR

	SOPeerCred = ctrl.SOPeerCred
)

var ErrWouldBlock = core.ErrWouldBlock

// Config sizes the socket table the Driver serves.
type Config struct {
	// TableSize is the number of socket slots, including the reserved
	// slot 0.
	TableSize int
	// RingCapacity is the per-socket ring buffer size in bytes.
	RingCapacity int
	// BacklogLen is the default listen() backlog length.
	BacklogLen int
	// PathMax bounds bind/connect address matching.
	PathMax int
	// OpenMax bounds an ancillary SendFDs payload.
	OpenMax int
}

// DefaultConfig mirrors internal/core's own defaults.
func DefaultConfig() *Config {
	c := core.DefaultConfig()
	return &Config{
		TableSize:    c.TableSize,
		RingCapacity: c.RingCapacity,
		BacklogLen:   c.BacklogLen,
		PathMax:      c.PathMax,
		OpenMax:      c.OpenMax,
	}
}

func (c *Config) toCore() *core.Config {
	return &core.Config{
		TableSize:    c.TableSize,
		RingCapacity: c.RingCapacity,
		BacklogLen:   c.BacklogLen,
		PathMax:      c.PathMax,
		OpenMax:      c.OpenMax,
	}
}

// Options configures an embedding not covered by Config.
type Options struct {
	// Logger receives the driver's own log lines (if nil, uses
	// logging.Default()).
	Logger *logging.Logger
	// Observer receives per-operation events (if nil, defaults to a
	// fresh *Metrics instance, reachable via Driver.Metrics).
	Observer interfaces.Observer
}

// Driver bundles a dispatch.Dispatcher with the Metrics instance it
// defaults to, and is the handle an embedding character-device
// harness drives via DeviceOps. It is the analogue of the teacher's
// Device/CreateAndServe, minus any real kernel registration: there is
// no /dev/udsockN node here, only the in-process state machine.
type Driver struct {
	dispatcher *dispatch.Dispatcher
	metrics    *Metrics
	logger     *logging.Logger
}

// New constructs a Driver. harness is the out-of-scope character-device
// dispatch harness's reply sink (spec.md §1's pinned Bus collaborator);
// copier is the out-of-scope cross-endpoint safe-copy primitive (spec's
// pinned Copier collaborator).
func New(cfg *Config, copier core.Copier, harness core.Bus, options *Options) *Driver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if options == nil {
		options = &Options{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := NewMetrics()
	observer := options.Observer
	if observer == nil {
		observer = metrics
	}

	d := dispatch.New(cfg.toCore(), copier, harness, logger, observer)
	return &Driver{dispatcher: d, metrics: metrics, logger: logger}
}

// Dispatcher exposes the underlying dispatch.DeviceOps implementation
// for the embedding harness to drive.
func (d *Driver) Dispatcher() dispatch.DeviceOps { return d.dispatcher }

// Metrics returns the driver's default Metrics instance. It reflects
// live counters only when no custom Observer was supplied to New.
func (d *Driver) Metrics() *Metrics { return d.metrics }

// Shutdown begins the SIGTERM-equivalent graceful shutdown countdown:
// onDone fires once every open slot has closed.
func (d *Driver) Shutdown(onDone func()) {
	d.dispatcher.SetTerminateHook(onDone)
	d.dispatcher.BeginShutdown()
}
