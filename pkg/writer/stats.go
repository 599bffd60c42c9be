package writer

import "sync/atomic"

// Stats holds the writer's internal counters.
type Stats struct {
	accepted    atomic.Uint64
	dropped     atomic.Uint64
	sunk        atomic.Uint64
	queuedBytes atomic.Int64
	peakQueued  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the writer counters.
type StatsSnapshot struct {
	// Accepted is the number of packets taken into the queue.
	Accepted uint64

	// Dropped is the number of packets rejected by the drop policy.
	Dropped uint64

	// Sunk is the number of completed sink calls (including synchronous
	// pushes).
	Sunk uint64

	// QueuedBytes is the queue occupancy at the last observation.
	QueuedBytes int64

	// PeakQueuedBytes is the highest occupancy observed.
	PeakQueuedBytes int64
}

// observeQueued records the occupancy after an accepted push and updates the
// high-water mark.
func (s *Stats) observeQueued(bytes int64) {
	s.queuedBytes.Store(bytes)
	for {
		peak := s.peakQueued.Load()
		if bytes <= peak || s.peakQueued.CompareAndSwap(peak, bytes) {
			return
		}
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:        s.accepted.Load(),
		Dropped:         s.dropped.Load(),
		Sunk:            s.sunk.Load(),
		QueuedBytes:     s.queuedBytes.Load(),
		PeakQueuedBytes: s.peakQueued.Load(),
	}
}
