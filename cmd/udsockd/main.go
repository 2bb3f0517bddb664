// Command udsockd is a demo harness for the udsock socket-table
// engine: it opens a listener and a client in the same process,
// completes the accept/connect handshake, and then repeatedly writes a
// fixed message from the client and reads it on the server side (nothing
// is written back to the client), the way cmd/ublk-mem/main.go demos the
// teacher's in-memory backend without touching a real block device.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/go-udsock/udsock"
	"github.com/go-udsock/udsock/internal/logging"
)

// harnessBus is the minimal out-of-scope dispatch-harness reply sink:
// it just logs deferred completions and readiness notifications, since
// there is no real character-device queue to wake up in this demo.
type harnessBus struct {
	logger *logging.Logger
}

func (h *harnessBus) TaskReply(endpt udsock.Endpoint, id uint64, result int, err error) {
	h.logger.WithOp(id, "reply").WithError(err).Debug("task reply", "endpt", endpt, "result", result)
}

func (h *harnessBus) SelectReply(selEndpt udsock.Endpoint, minor int, ops udsock.Ops) {
	h.logger.ForSlot(minor).Debug("select reply", "endpt", selEndpt, "ops", ops)
}

func main() {
	app := cli.NewApp()
	app.Name = "udsockd"
	app.Usage = "udsock socket-table engine demo"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "table-size", Value: 64, Usage: "socket table slot count"},
		cli.IntFlag{Name: "ring-capacity", Value: 16 * 1024, Usage: "per-socket ring buffer size in bytes"},
		cli.StringFlag{Name: "path", Value: "/demo", Usage: "bind/connect address exercised by the demo"},
		cli.BoolFlag{Name: "verbose, v", Usage: "debug-level logging"},
		cli.IntFlag{Name: "pin-cpu", Value: -1, Usage: "pin the demo loop to this CPU (-1 disables)"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "run the listener/client echo demo until interrupted",
			Action: func(c *cli.Context) error {
				return serve(c)
			},
		},
		{
			Name:  "bench",
			Usage: "write N echo round trips and report operation and byte counts",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "rounds", Value: 100000, Usage: "number of write/read round trips"},
			},
			Action: func(c *cli.Context) error {
				return bench(c)
			},
		},
	}
	app.Action = func(c *cli.Context) error {
		return serve(c)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "udsockd:", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *logging.Logger {
	cfg := logging.DefaultConfig()
	if c.GlobalBool("verbose") || c.Bool("verbose") {
		cfg.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(cfg)
	logging.SetDefault(logger)
	return logger
}

func pinCPU(logger *logging.Logger, cpu int) {
	if cpu < 0 {
		return
	}
	runtime.LockOSThread()
	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		logger.With("cpu", cpu).WithError(err).Warn("failed to set CPU affinity")
		return
	}
	logger.With("cpu", cpu).Debug("pinned demo loop to CPU")
}

func buildDriver(c *cli.Context, logger *logging.Logger) *udsock.Driver {
	cfg := &udsock.Config{
		TableSize:    c.GlobalInt("table-size"),
		RingCapacity: c.GlobalInt("ring-capacity"),
		BacklogLen:   128,
		PathMax:      4096,
		OpenMax:      16,
	}
	return udsock.New(cfg, &udsock.InMemoryCopier{}, &harnessBus{logger: logger}, &udsock.Options{Logger: logger})
}

// handshake opens a listener and a client, binds/listens/connects/
// accepts them against each other, and returns the two connected
// minors (server, client).
func handshake(dops interface {
	Open(udsock.Endpoint, udsock.Ucred) (int, error)
	Ioctl(int, udsock.Endpoint, udsock.IoctlCmd, any, udsock.Flags, uint64) (any, error)
}, path string) (server, client int, err error) {
	server, err = dops.Open(udsock.Endpoint(1), udsock.Ucred{PID: int32(os.Getpid())})
	if err != nil {
		return 0, 0, err
	}
	if _, err = dops.Ioctl(server, udsock.Endpoint(1), udsock.CmdBind, udsock.BindArgs{Path: path}, 0, 0); err != nil {
		return 0, 0, err
	}
	if _, err = dops.Ioctl(server, udsock.Endpoint(1), udsock.CmdListen, udsock.ListenArgs{}, 0, 0); err != nil {
		return 0, 0, err
	}

	client, err = dops.Open(udsock.Endpoint(2), udsock.Ucred{PID: int32(os.Getpid())})
	if err != nil {
		return 0, 0, err
	}

	if _, err = dops.Ioctl(server, udsock.Endpoint(1), udsock.CmdAccept, udsock.AcceptArgs{Owner: udsock.Endpoint(1)}, 0, 1); err != nil && err != udsock.ErrWouldBlock {
		return 0, 0, err
	}
	res, err := dops.Ioctl(client, udsock.Endpoint(2), udsock.CmdConnect, udsock.ConnectArgs{Path: path}, 0, 2)
	if err != nil {
		return 0, 0, err
	}
	return res.(udsock.ConnectResult).Peer, client, nil
}

func serve(c *cli.Context) error {
	logger := newLogger(c)
	pinCPU(logger, c.GlobalInt("pin-cpu"))

	driver := buildDriver(c, logger)
	dops := driver.Dispatcher()

	server, client, err := handshake(dops, c.GlobalString("path"))
	if err != nil {
		return err
	}
	logger.With("server", server, "client", client).Info("demo handshake complete")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)

	echoCh := make(chan struct{})
	go func() {
		buf := []byte("udsockd echo\n")
		for i := 0; ; i++ {
			select {
			case <-echoCh:
				return
			default:
			}
			if _, err := dops.Write(client, udsock.Endpoint(2), buf, len(buf), 0, uint64(i)); err != nil {
				logger.ForSlot(client).WithOp(uint64(i), "WRITE").WithError(err).Warn("write failed")
			}
			var out []byte
			if _, err := dops.Read(server, udsock.Endpoint(1), &out, len(buf), 0, uint64(i)); err != nil {
				logger.ForSlot(server).WithOp(uint64(i), "READ").WithError(err).Warn("read failed")
			}
		}
	}()

	<-sigCh
	close(echoCh)
	logger.With("server", server, "client", client).Info("shutdown requested")

	done := make(chan struct{})
	driver.Shutdown(func() { close(done) })
	_ = dops.Close(client)
	_ = dops.Close(server)
	<-done

	snap := driver.Metrics().Snapshot()
	fmt.Printf("reads=%d writes=%d bytes_in=%d bytes_out=%d\n", snap.ReadOps, snap.WriteOps, snap.ReadBytes, snap.WriteBytes)
	return nil
}

func bench(c *cli.Context) error {
	logger := newLogger(c)
	pinCPU(logger, c.GlobalInt("pin-cpu"))

	driver := buildDriver(c, logger)
	dops := driver.Dispatcher()

	server, client, err := handshake(dops, c.GlobalString("path"))
	if err != nil {
		return err
	}

	rounds := c.Int("rounds")
	payload := []byte("bench-payload")
	for i := 0; i < rounds; i++ {
		if _, err := dops.Write(client, udsock.Endpoint(2), payload, len(payload), 0, uint64(i)); err != nil {
			return err
		}
		var out []byte
		if _, err := dops.Read(server, udsock.Endpoint(1), &out, len(payload), 0, uint64(i)); err != nil {
			return err
		}
	}

	snap := driver.Metrics().Snapshot()
	fmt.Printf("rounds=%d reads=%d writes=%d bytes_in=%d bytes_out=%d\n", rounds, snap.ReadOps, snap.WriteOps, snap.ReadBytes, snap.WriteBytes)
	return nil
}
