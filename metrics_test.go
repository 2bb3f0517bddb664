package udsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsObserveReadWrite(t *testing.T) {
	m := NewMetrics()
	m.ObserveOpen(1)
	m.ObserveRead(1, 10, nil)
	m.ObserveWrite(1, 5, assertErr)
	m.ObserveClose(1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Opens)
	assert.Equal(t, uint64(1), snap.Closes)
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(10), snap.ReadBytes)
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(1), snap.WriteErrors)
	assert.Equal(t, uint64(0), snap.WriteBytes)
}

func TestMetricsRecordLatencyBucketing(t *testing.T) {
	m := NewMetrics()
	m.RecordLatency(500)
	m.RecordLatency(5_000_000)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.LatencyHistogram[0])
	assert.Equal(t, uint64(2), snap.LatencyHistogram[numLatencyBuckets-1])
}

func TestNoOpObserverDiscardsEverything(t *testing.T) {
	var o NoOpObserver
	assert.NotPanics(t, func() {
		o.ObserveOpen(1)
		o.ObserveClose(1)
		o.ObserveRead(1, 1, nil)
		o.ObserveWrite(1, 1, nil)
		o.ObserveSuspend(1)
		o.ObserveWakeup(1)
		o.ObserveCancel(1)
		o.ObserveReset(1)
		o.ObserveDatagramDrop(1)
	})
}

var assertErr = &Error{Op: "write", Code: ErrCodeBrokenPipe}
