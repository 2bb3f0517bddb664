package udsock

import (
	"sync/atomic"
	"time"

	"github.com/go-udsock/udsock/internal/interfaces"
)

// LatencyBuckets are the read/write latency histogram bucket
// boundaries in nanoseconds, log-spaced from 1us to 1s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
}

const numLatencyBuckets = 7

// Metrics tracks socket-table-wide operational counters. It
// implements interfaces.Observer so it can be wired directly into a
// Driver as the dispatch layer's observer.
type Metrics struct {
	Opens  atomic.Uint64
	Closes atomic.Uint64

	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	Suspends      atomic.Uint64
	Wakeups       atomic.Uint64
	Cancels       atomic.Uint64
	Resets        atomic.Uint64
	DatagramDrops atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

var _ interfaces.Observer = (*Metrics)(nil)

// NewMetrics creates a Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) ObserveOpen(int)  { m.Opens.Add(1) }
func (m *Metrics) ObserveClose(int) { m.Closes.Add(1) }

func (m *Metrics) ObserveRead(_ int, n int, err error) {
	m.ReadOps.Add(1)
	if err != nil {
		m.ReadErrors.Add(1)
		return
	}
	m.ReadBytes.Add(uint64(n))
}

func (m *Metrics) ObserveWrite(_ int, n int, err error) {
	m.WriteOps.Add(1)
	if err != nil {
		m.WriteErrors.Add(1)
		return
	}
	m.WriteBytes.Add(uint64(n))
}

func (m *Metrics) ObserveSuspend(int)       { m.Suspends.Add(1) }
func (m *Metrics) ObserveWakeup(int)        { m.Wakeups.Add(1) }
func (m *Metrics) ObserveCancel(int)        { m.Cancels.Add(1) }
func (m *Metrics) ObserveReset(int)         { m.Resets.Add(1) }
func (m *Metrics) ObserveDatagramDrop(int)  { m.DatagramDrops.Add(1) }

// RecordLatency folds a single operation's latency into the histogram.
// Nothing in this module calls it: core never touches wall-clock time,
// so a caller that measures around reads and writes calls it directly.
func (m *Metrics) RecordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time copy of Metrics suitable for reporting.
type Snapshot struct {
	Opens, Closes           uint64
	ReadOps, WriteOps       uint64
	ReadBytes, WriteBytes   uint64
	ReadErrors, WriteErrors uint64
	Suspends, Wakeups       uint64
	Cancels, Resets         uint64
	DatagramDrops           uint64
	AvgLatencyNs            uint64
	UptimeNs                uint64
	LatencyHistogram        [numLatencyBuckets]uint64
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Opens:         m.Opens.Load(),
		Closes:        m.Closes.Load(),
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		WriteBytes:    m.WriteBytes.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		Suspends:      m.Suspends.Load(),
		Wakeups:       m.Wakeups.Load(),
		Cancels:       m.Cancels.Load(),
		Resets:        m.Resets.Load(),
		DatagramDrops: m.DatagramDrops.Load(),
		UptimeNs:      uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
	if opCount := m.OpCount.Load(); opCount > 0 {
		s.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	for i := range m.LatencyBuckets {
		s.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return s
}

// NoOpObserver discards every event. New does not use it by default:
// with no Options.Observer, a Driver observes into its own *Metrics.
type NoOpObserver struct{}

var _ interfaces.Observer = NoOpObserver{}

func (NoOpObserver) ObserveOpen(int)              {}
func (NoOpObserver) ObserveClose(int)              {}
func (NoOpObserver) ObserveRead(int, int, error)  {}
func (NoOpObserver) ObserveWrite(int, int, error) {}
func (NoOpObserver) ObserveSuspend(int)            {}
func (NoOpObserver) ObserveWakeup(int)             {}
func (NoOpObserver) ObserveCancel(int)             {}
func (NoOpObserver) ObserveReset(int)              {}
func (NoOpObserver) ObserveDatagramDrop(int)       {}
