package dispatch

import (
	"github.com/pkg/errors"

	"github.com/go-udsock/udsock/internal/core"
	"github.com/go-udsock/udsock/internal/ctrl"
)

// IoctlCmd identifies one of the control operations spec.md §1 routes
// through the ctrl collaborator rather than through Read/Write.
type IoctlCmd int

const (
	CmdBind IoctlCmd = iota
	CmdListen
	CmdConnect
	CmdAccept
	CmdShutdown
	CmdGetSockOpt
	CmdSendFDs
	CmdRecvFDs
	CmdCredentials
)

type (
	BindArgs   struct{ Path string }
	ListenArgs struct{ Backlog int }

	ConnectArgs   struct{ Path string }
	ConnectResult struct{ Peer int }

	AcceptArgs   struct{ Owner core.Endpoint; Cred core.Ucred }
	AcceptResult struct{ Child int }

	ShutdownArgs struct{ How ctrl.How }

	GetSockOptArgs   struct{ Opt ctrl.SockOpt }
	GetSockOptResult struct{ Cred core.Ucred }

	SendFDsArgs struct{ FDs []int }

	RecvFDsResult struct{ FDs []int }

	CredentialsResult struct{ Cred core.Ucred }
)

// Ioctl implements DeviceOps.Ioctl, decoding arg per cmd and calling
// the matching ctrl.Controller method. CONNECT and ACCEPT are the only
// two commands that can themselves park a request (spec §4.1's
// backlog/accept handshake); both already call engine.Suspend
// internally before returning core.ErrWouldBlock, so Ioctl only needs
// to apply the NONBLOCK conversion on top, never a second Suspend.
func (d *Dispatcher) Ioctl(minor int, endpt core.Endpoint, cmd IoctlCmd, arg any, flags Flags, id uint64) (any, error) {
	switch cmd {
	case CmdBind:
		a, ok := arg.(BindArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl bind: bad argument type")
		}
		return nil, d.ctrl.Bind(minor, a.Path)

	case CmdListen:
		a, ok := arg.(ListenArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl listen: bad argument type")
		}
		return nil, d.ctrl.Listen(minor, a.Backlog)

	case CmdConnect:
		a, ok := arg.(ConnectArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl connect: bad argument type")
		}
		peer, err := d.ctrl.Connect(minor, a.Path, endpt, id)
		if err == core.ErrWouldBlock {
			if result, cerr, converted := d.convertIfNonblock(minor, endpt, id, flags, core.SuspConnect); converted {
				return nil, orErr(result, cerr)
			}
			return nil, core.ErrWouldBlock
		}
		if err != nil {
			return nil, err
		}
		d.observer.ObserveWakeup(minor)
		return ConnectResult{Peer: peer}, nil

	case CmdAccept:
		a, ok := arg.(AcceptArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl accept: bad argument type")
		}
		child, err := d.ctrl.Accept(minor, a.Owner, a.Cred, endpt, id)
		if err == core.ErrWouldBlock {
			if result, cerr, converted := d.convertIfNonblock(minor, endpt, id, flags, core.SuspAccept); converted {
				return nil, orErr(result, cerr)
			}
			return nil, core.ErrWouldBlock
		}
		if err != nil {
			return nil, err
		}
		return AcceptResult{Child: child}, nil

	case CmdShutdown:
		a, ok := arg.(ShutdownArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl shutdown: bad argument type")
		}
		return nil, d.ctrl.Shutdown(minor, a.How)

	case CmdGetSockOpt:
		a, ok := arg.(GetSockOptArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl getsockopt: bad argument type")
		}
		cred, err := d.ctrl.GetSockOpt(minor, a.Opt)
		if err != nil {
			return nil, err
		}
		return GetSockOptResult{Cred: cred}, nil

	case CmdSendFDs:
		a, ok := arg.(SendFDsArgs)
		if !ok {
			return nil, errors.New("dispatch: ioctl sendfds: bad argument type")
		}
		return nil, d.ctrl.SendFDs(minor, a.FDs)

	case CmdRecvFDs:
		fds, err := d.ctrl.RecvFDs(minor)
		if err != nil {
			return nil, err
		}
		return RecvFDsResult{FDs: fds}, nil

	case CmdCredentials:
		cred, err := d.ctrl.Credentials(minor)
		if err != nil {
			return nil, err
		}
		return CredentialsResult{Cred: cred}, nil

	default:
		return nil, errors.Errorf("dispatch: ioctl: unknown command %d", cmd)
	}
}

// orErr discards an unused converted result for ioctls whose
// successful shape carries no integer payload, keeping only the
// converted error (EINPROGRESS/EAGAIN).
func orErr(_ int, err error) error { return err }
