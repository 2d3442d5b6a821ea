package stream

import "sync/atomic"

// Global counters for preview delivery health.
var (
	previewsPublished atomic.Uint64 // previews handed to Publish
	previewsDropped   atomic.Uint64 // per-sink deliveries skipped because the queue was full
	packetsSent       atomic.Uint64 // RTP packets written to sinks
	sinkErrors        atomic.Uint64 // failed sink writes
)

// ResetCounters resets all metrics to zero.
func ResetCounters() {
	previewsPublished.Store(0)
	previewsDropped.Store(0)
	packetsSent.Store(0)
	sinkErrors.Store(0)
}

// GetCounters returns a snapshot of current metrics.
func GetCounters() map[string]uint64 {
	return map[string]uint64{
		"previews_published": previewsPublished.Load(),
		"previews_dropped":   previewsDropped.Load(),
		"packets_sent":       packetsSent.Load(),
		"sink_errors":        sinkErrors.Load(),
	}
}

func incPublished() { previewsPublished.Add(1) }
func incDropped() { previewsDropped.Add(1) }
func incSinkErrors() { sinkErrors.Add(1) }
func incPacketsSent(n int) {
	if n > 0 {
		packetsSent.Add(uint64(n))
	}
}
