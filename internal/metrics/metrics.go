// Package metrics keeps in-process event counters for the relay and exposes
// them in Prometheus' text format.
package metrics

import (
	"sort"
	"sync"
)

// Event names counted by the relay.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	RoomsJoined       = "rooms_joined"
	PeerJoinedSent    = "peer_joined_sent"
	PeerLeftSent      = "peer_left_sent"
	OffersRelayed     = "offers_relayed"
	AnswersRelayed    = "answers_relayed"
	SignalsDropped    = "signals_dropped"
	OutboxOverflow    = "outbox_overflow"
	EncodeFailures    = "encode_failures"
)

// ErrorEvent is the counter name for a routing error kind.
func ErrorEvent(kind string) string {
	return "errors_" + kind
}

// Metrics is a concurrency-safe counter registry with optional gauges that
// are sampled at read time.
type Metrics struct {
	mu     sync.Mutex
	m      map[string]uint64
	gauges map[string]func() float64
}

func New() *Metrics {
	return &Metrics{
		m:      make(map[string]uint64),
		gauges: make(map[string]func() float64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Gauge registers fn to be sampled whenever gauges are read. Registering the
// same name again replaces the previous function.
func (m *Metrics) Gauge(name string, fn func() float64) {
	m.mu.Lock()
	m.gauges[name] = fn
	m.mu.Unlock()
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

// Gauges samples every registered gauge.
func (m *Metrics) Gauges() map[string]float64 {
	m.mu.Lock()
	fns := make(map[string]func() float64, len(m.gauges))
	for k, fn := range m.gauges {
		fns[k] = fn
	}
	m.mu.Unlock()

	out := make(map[string]float64, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}

func sortedNames[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
