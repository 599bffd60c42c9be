package precache

import "sync/atomic"

// Stats holds the precacher's internal counters. Counters are updated with
// atomics because the worker and the consumer each own some of them.
type Stats struct {
	served      atomic.Uint64
	hits        atomic.Uint64
	misses      atomic.Uint64
	flushes     atomic.Uint64
	fills       atomic.Uint64
	bytesCached atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the precacher counters.
type StatsSnapshot struct {
	// Served is the number of requests answered (memo hits excluded).
	Served uint64

	// Hits is the number of requests answered from the ring, including
	// re-publishes of the previously delivered packet.
	Hits uint64

	// Misses is the number of requests answered by a synchronous load.
	Misses uint64

	// Flushes is the number of times an out-of-order request destroyed the
	// cached window.
	Flushes uint64

	// Fills is the number of packets appended by prefill and fill passes.
	Fills uint64

	// BytesCached is the occupied scratch bytes at the last observation.
	BytesCached int64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Served:      s.served.Load(),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Flushes:     s.flushes.Load(),
		Fills:       s.fills.Load(),
		BytesCached: s.bytesCached.Load(),
	}
}
