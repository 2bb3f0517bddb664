// Package ctrl is the control/ioctl collaborator spec.md §1 delegates
// bind/connect/listen/accept/shutdown/getsockopt/ancillary-FD-passing/
// credentials to. It decodes the operation payload and drives
// internal/core's exported mutators; internal/core never parses an
// ioctl command itself.
package ctrl

// How is the shutdown(2) half-close selector.
type How int

const (
	ShutRD How = iota
	ShutWR
	ShutRDWR
)

// SockOpt identifies a GetSockOpt query. Only SO_PEERCRED is modeled,
// per the MINIX UDS driver feature the distillation's Non-goals do not
// exclude.
type SockOpt int

const (
	SOPeerCred SockOpt = iota
)

// Config sizes the control collaborator itself; today this only carries
// the default per-Listen backlog used when a caller passes backlog<=0.
type Config struct {
	DefaultBacklog int
}

// DefaultConfig mirrors internal/core's own default backlog so a
// listen() call with no explicit backlog behaves the same as the
// table's built-in SOMAXCONN.
func DefaultConfig() *Config {
	return &Config{DefaultBacklog: 128}
}
