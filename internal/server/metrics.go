package server

import "sync/atomic"

// Global counters for the frame store.
var (
	framesStored  atomic.Uint64 // frames written into native buffers
	framesServed  atomic.Uint64 // successful GET /frames/{id} responses
	framesDeleted atomic.Uint64 // frames removed by DELETE
)

// ResetCounters resets all metrics to zero.
func ResetCounters() {
	framesStored.Store(0)
	framesServed.Store(0)
	framesDeleted.Store(0)
}

// GetCounters returns a snapshot of current metrics.
func GetCounters() map[string]uint64 {
	return map[string]uint64{
		"frames_stored":  framesStored.Load(),
		"frames_served":  framesServed.Load(),
		"frames_deleted": framesDeleted.Load(),
	}
}

func incFramesStored()  { framesStored.Add(1) }
func incFramesServed()  { framesServed.Add(1) }
func incFramesDeleted() { framesDeleted.Add(1) }
