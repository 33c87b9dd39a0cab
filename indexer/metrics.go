package indexer

import (
	"sync/atomic"
)

// Metrics are plain atomic counters shared by the indexer, the consumer
// loop and the monitor server.
type Metrics struct {
	cycles    atomic.Uint64
	fetched   atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	lastAcked atomic.Uint64
	lastError atomic.Value // string
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) setLastError(msg string) {
	m.lastError.Store(msg)
}

// Snapshot is the JSON shape served by the monitor.
type Snapshot struct {
	Cycles             uint64 `json:"cycles"`
	Fetched            uint64 `json:"fetched"`
	Processed          uint64 `json:"processed"`
	Failed             uint64 `json:"failed"`
	Skipped            uint64 `json:"skipped"`
	LastAcknowledgedID uint64 `json:"lastAcknowledgedId"`
	LastError          string `json:"lastError,omitempty"`
}

func (m *Metrics) Snapshot() Snapshot {
	lastError, _ := m.lastError.Load().(string)

	return Snapshot{
		Cycles:             m.cycles.Load(),
		Fetched:            m.fetched.Load(),
		Processed:          m.processed.Load(),
		Failed:             m.failed.Load(),
		Skipped:            m.skipped.Load(),
		LastAcknowledgedID: m.lastAcked.Load(),
		LastError:          lastError,
	}
}
