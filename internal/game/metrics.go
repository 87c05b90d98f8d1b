package game

import "sync/atomic"

// Metrics records a room's runtime counters for the /metrics endpoint.
// All fields are updated atomically; a room's tick loop and its connection
// handlers share one instance.
type Metrics struct {
	TickCount   int64
	TotalTickNs int64
	Broadcasts  int64
	SendDrops   int64
	MessagesIn  int64
}

func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

func (m *Metrics) IncBroadcast() { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) IncSendDrop()  { atomic.AddInt64(&m.SendDrops, 1) }
func (m *Metrics) IncMessageIn() { atomic.AddInt64(&m.MessagesIn, 1) }

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	ticks := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":  ticks,
		"avg_tick_ms": avgMs,
		"broadcasts":  atomic.LoadInt64(&m.Broadcasts),
		"send_drops":  atomic.LoadInt64(&m.SendDrops),
		"messages_in": atomic.LoadInt64(&m.MessagesIn),
	}
}
