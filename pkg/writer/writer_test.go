package writer

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/framefeed/pkg/packet"
)

const testPacketSize = 1 << 10

func testPacket(idx uint64) packet.Packet {
	return packet.NewOpaque(bytes.Repeat([]byte{byte(idx % 256)}, testPacketSize))
}

// recordingSink captures every sink call in order.
type recordingSink struct {
	mu      sync.Mutex
	indices []uint64
	bytes   map[uint64][]byte
	delay   time.Duration
}

func newRecordingSink(delay time.Duration) *recordingSink {
	return &recordingSink{bytes: make(map[uint64][]byte), delay: delay}
}

func (s *recordingSink) sink(pkt packet.Packet, idx uint64) (uint64, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = append(s.indices, idx)
	s.bytes[idx] = pkt.Clone().Data
	return idx, nil
}

func (s *recordingSink) recorded() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.indices...)
}

func (s *recordingSink) payload(idx uint64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes[idx]
}

// ============================================================================
// Construction and Lifecycle Tests
// ============================================================================

func TestWriterConstruction(t *testing.T) {
	t.Run("RejectsNilCallback", func(t *testing.T) {
		_, err := New(nil, Config{})
		assert.ErrorIs(t, err, ErrNilSink)
	})

	t.Run("StopIsIdempotent", func(t *testing.T) {
		w, err := New(newRecordingSink(0).sink, Config{})
		require.NoError(t, err)
		require.NoError(t, w.Start(1<<20, false, 1))
		w.Stop()
		w.Stop()
		assert.False(t, w.Active())
	})
}

// ============================================================================
// Synchronous Path
// ============================================================================

func TestSynchronousPush(t *testing.T) {
	s := newRecordingSink(0)
	w, err := New(s.sink, Config{})
	require.NoError(t, err)

	// Not started: Push forwards the sink's return value.
	res := w.Push(testPacket(7), 7)
	assert.Equal(t, uint64(7), res)
	assert.Equal(t, []uint64{7}, s.recorded())
}

// ============================================================================
// Async Queueing
// ============================================================================

func TestAsyncDrain(t *testing.T) {
	s := newRecordingSink(0)
	w, err := New(s.sink, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(1<<20, false, 1))

	for idx := uint64(0); idx < 16; idx++ {
		pos := w.Push(testPacket(idx), idx)
		assert.NotEqual(t, Dropped, pos)
	}
	w.Stop()

	recorded := s.recorded()
	require.Len(t, recorded, 16)
	for idx := uint64(0); idx < 16; idx++ {
		assert.Equal(t, testPacket(idx).Data, s.payload(idx), "packet %d", idx)
	}
}

func TestPushDecouplesCallerStorage(t *testing.T) {
	s := newRecordingSink(5 * time.Millisecond)
	w, err := New(s.sink, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(1<<20, false, 1))

	pkt := testPacket(0)
	w.Push(pkt, 0)
	// Scribble over the caller's buffer while the sink is still pending.
	for i := range pkt.Data {
		pkt.Data[i] = 0xAA
	}
	w.Stop()

	assert.Equal(t, testPacket(0).Data, s.payload(0),
		"the queue must hold its own copy of the payload")
}

func TestDuplicateIndexOverwrites(t *testing.T) {
	s := newRecordingSink(0)

	// Park the single worker on a sacrificial packet so both pushes for
	// index 3 land in the pending map before any drain.
	gate := make(chan struct{})
	gated := func(pkt packet.Packet, idx uint64) (uint64, error) {
		<-gate
		return s.sink(pkt, idx)
	}
	w, err := New(gated, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(1<<20, false, 1))

	w.Push(testPacket(0), 0)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) == 0
	}, time.Second, time.Millisecond)

	first := packet.NewOpaque(bytes.Repeat([]byte{1}, 512))
	second := packet.NewOpaque(bytes.Repeat([]byte{2}, testPacketSize))
	w.Push(first, 3)
	w.Push(second, 3)
	close(gate)
	w.Stop()

	recorded := s.recorded()
	require.Equal(t, []uint64{0, 3}, recorded, "last write wins: one sink call per index")
	assert.Equal(t, second.Data, s.payload(3))
}

// ============================================================================
// Backpressure (literal scenario)
// ============================================================================

func TestBackpressure(t *testing.T) {
	const maxBytes = 4 * 1024

	release := make(chan struct{})
	s := newRecordingSink(0)
	blocking := func(pkt packet.Packet, idx uint64) (uint64, error) {
		<-release
		return s.sink(pkt, idx)
	}

	w, err := New(blocking, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(maxBytes, false, 1))

	// The worker grabs the first packet and parks on the gate; the next
	// four 1-KiB packets then fill the queue exactly.
	require.NotEqual(t, Dropped, w.Push(testPacket(0), 0))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) == 0
	}, time.Second, time.Millisecond)
	for idx := uint64(1); idx < 5; idx++ {
		pos := w.Push(testPacket(idx), idx)
		require.NotEqual(t, Dropped, pos)
	}

	nextDone := make(chan struct{})
	go func() {
		defer close(nextDone)
		pos := w.Push(testPacket(5), 5)
		assert.NotEqual(t, Dropped, pos)
	}()

	select {
	case <-nextDone:
		t.Fatal("push must block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-nextDone:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after the sink drained")
	}
	w.Stop()

	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, s.recorded(),
		"single worker drains in ascending index order")
}

// ============================================================================
// Drop Policy (literal scenario)
// ============================================================================

func TestDropPolicy(t *testing.T) {
	const maxBytes = 4 * 1024

	s := newRecordingSink(10 * time.Millisecond)
	w, err := New(s.sink, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(maxBytes, true, 1))

	var accepted []uint64
	var dropped int
	start := time.Now()
	for idx := uint64(0); idx < 100; idx++ {
		pos := w.Push(testPacket(idx), idx)
		if pos == Dropped {
			dropped++
		} else {
			accepted = append(accepted, idx)
		}
	}
	pushElapsed := time.Since(start)
	w.Stop()

	assert.Greater(t, dropped, 0, "a saturated queue must drop")
	assert.Less(t, pushElapsed, time.Second, "drop-mode pushes never block")

	recorded := s.recorded()
	assert.Equal(t, accepted, recorded,
		"every accepted packet is sunk exactly once, in ascending order")
	for _, idx := range accepted {
		assert.Equal(t, testPacket(idx).Data, s.payload(idx), "packet %d", idx)
	}
}

// ============================================================================
// Concurrent Workers (literal scenario)
// ============================================================================

func TestConcurrentWorkers(t *testing.T) {
	const workers = 4

	var inFlight atomic.Int64
	var peak atomic.Int64
	var count atomic.Int64
	seen := sync.Map{}

	sink := func(pkt packet.Packet, idx uint64) (uint64, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		if _, loaded := seen.LoadOrStore(idx, struct{}{}); loaded {
			t.Errorf("index %d sunk twice", idx)
		}
		count.Add(1)
		inFlight.Add(-1)
		return idx, nil
	}

	w, err := New(sink, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(1<<20, false, workers))

	for idx := uint64(0); idx < 1000; idx++ {
		pos := w.Push(testPacket(idx), idx)
		require.NotEqual(t, Dropped, pos)
	}
	w.Stop()

	assert.Equal(t, int64(1000), count.Load(), "every index observed exactly once")
	assert.LessOrEqual(t, peak.Load(), int64(workers))
	assert.Greater(t, peak.Load(), int64(1), "sinks overlap across workers")
}

// ============================================================================
// Queue Accounting
// ============================================================================

func TestQueuedBytesBounded(t *testing.T) {
	const maxBytes = 8 * 1024

	s := newRecordingSink(time.Millisecond)
	w, err := New(s.sink, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(maxBytes, true, 2))

	for idx := uint64(0); idx < 200; idx++ {
		w.Push(testPacket(idx), idx)
	}
	w.Stop()

	assert.LessOrEqual(t, w.Stats().PeakQueuedBytes, int64(maxBytes))
	assert.Zero(t, w.Stats().QueuedBytes)
}

func TestPushReturnsPendingPosition(t *testing.T) {
	gate := make(chan struct{})
	s := newRecordingSink(0)
	gated := func(pkt packet.Packet, idx uint64) (uint64, error) {
		<-gate
		return s.sink(pkt, idx)
	}

	w, err := New(gated, Config{})
	require.NoError(t, err)
	require.NoError(t, w.Start(1<<20, false, 1))

	// The worker grabs index 0 immediately; later pushes stay pending and
	// report their rank among the pending keys.
	w.Push(testPacket(0), 0)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) == 0
	}, time.Second, time.Millisecond)

	assert.Equal(t, uint64(0), w.Push(testPacket(10), 10))
	assert.Equal(t, uint64(1), w.Push(testPacket(20), 20))
	assert.Equal(t, uint64(1), w.Push(testPacket(15), 15))

	close(gate)
	w.Stop()
}
