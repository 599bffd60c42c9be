// Package writer implements a multi-worker, byte-bounded output queue.
//
// A Writer accepts out-of-order packets from the algorithm with minimal
// latency and persists every accepted packet through a user-supplied sink.
// In-flight memory is bounded in bytes; when the queue is full the Writer
// either applies backpressure (Push blocks until space frees up) or drops
// the packet, per configuration.
//
// Pending packets are drained in ascending index order. With a single worker
// the sink therefore sees strictly increasing indices; with several workers
// each pick of the smallest pending index is atomic, but sink calls for
// different indices may overlap in time, so the sink must tolerate being
// called concurrently for distinct indices.
package writer

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/framefeed/internal/bytesize"
	"github.com/marmos91/framefeed/internal/logger"
	"github.com/marmos91/framefeed/pkg/bufpool"
	"github.com/marmos91/framefeed/pkg/packet"
)

// SinkFunc persists one packet. The returned value is opaque to the Writer
// and is only surfaced as the result of a synchronous Push. Sink errors are
// logged and otherwise ignored: the Writer treats every call as successful
// for accounting purposes and neither retries nor requeues.
//
// The sink must tolerate concurrent invocations for distinct indices.
type SinkFunc func(pkt packet.Packet, idx uint64) (uint64, error)

// Dropped is returned by Push when the queue is full and the drop policy is
// enabled.
const Dropped = ^uint64(0)

// ErrNilSink is returned when constructing a Writer without a callback.
var ErrNilSink = errors.New("writer: nil sink callback")

// Metrics provides observability for writer operations.
//
// Implementations must be safe for concurrent use. A nil Metrics disables
// collection.
type Metrics interface {
	// ObservePush records a Push call and whether the packet was accepted.
	ObservePush(accepted bool, bytes int64)

	// ObserveSink records a completed sink call.
	ObserveSink(bytes int64, duration time.Duration)

	// RecordQueuedBytes records the bytes currently held by the queue.
	RecordQueuedBytes(bytes int64)
}

// Config holds optional writer settings.
type Config struct {
	// Name identifies this writer in log output.
	Name string

	// Metrics is an optional metrics collector (nil for no metrics).
	Metrics Metrics

	// Pool supplies the buffers backing the defensive packet copies taken
	// on Push. Nil uses the package-global bufpool.
	Pool *bufpool.Pool
}

// entry is one pending packet together with its pooled backing buffer.
type entry struct {
	pkt packet.Packet
	buf []byte
}

// Writer queues output packets under a byte budget and drains them to the
// sink with a pool of worker goroutines.
//
// The zero value is not usable; construct with New.
type Writer struct {
	sink    SinkFunc
	name    string
	metrics Metrics
	pool    *bufpool.Pool

	mu       sync.Mutex
	nonEmpty *sync.Cond
	hasSpace *sync.Cond

	pending     map[uint64]entry
	order       indexHeap
	queuedBytes uint64
	maxBytes    uint64
	dropOnFull  bool
	active      bool

	wg sync.WaitGroup

	stats Stats
}

// New creates a Writer around the given sink callback.
func New(sink SinkFunc, cfg Config) (*Writer, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	name := cfg.Name
	if name == "" {
		name = "writer"
	}
	w := &Writer{
		sink:    sink,
		name:    name,
		metrics: cfg.Metrics,
		pool:    cfg.Pool,
	}
	w.nonEmpty = sync.NewCond(&w.mu)
	w.hasSpace = sync.NewCond(&w.mu)
	return w, nil
}

// Start clears the queue state and spawns the drain workers.
//
// queueBytes is clamped to MaxQueueSize; a zero queueBytes leaves the Writer
// in synchronous mode. Starting an already-started Writer restarts it.
func (w *Writer) Start(queueBytes uint64, dropOnFull bool, workers int) error {
	if workers < 1 {
		workers = 1
	}
	w.mu.Lock()
	active := w.active
	w.mu.Unlock()
	if active {
		w.Stop()
	}
	if queueBytes == 0 {
		return nil
	}
	if queueBytes > MaxQueueSize {
		queueBytes = MaxQueueSize
	}

	w.mu.Lock()
	w.pending = make(map[uint64]entry)
	w.order = w.order[:0]
	w.queuedBytes = 0
	w.maxBytes = queueBytes
	w.dropOnFull = dropOnFull
	w.active = true
	w.mu.Unlock()

	logger.Debug("Starting writer",
		"name", w.name,
		"queue", bytesize.ByteSize(queueBytes).String(),
		"drop_on_full", dropOnFull,
		"workers", workers)

	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.drain(i)
	}
	return nil
}

// Stop signals shutdown and joins the workers. Workers drain every remaining
// pending packet before exiting, so all accepted packets reach the sink.
// Stop is idempotent. A started Writer that is dropped without Stop keeps
// its drain goroutines alive.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	w.mu.Unlock()

	w.nonEmpty.Broadcast()
	w.hasSpace.Broadcast()
	w.wg.Wait()

	logger.Debug("Stopped writer", "name", w.name)
}

// Active reports whether drain workers are running.
func (w *Writer) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() StatsSnapshot {
	return w.stats.snapshot()
}

// Push hands one output packet to the Writer.
//
// When the Writer is not started, the sink is called synchronously and its
// result returned. Otherwise the packet bytes are copied (decoupling the
// caller's storage), the copy is queued, and Push returns the packet's
// position among the pending indices. A full queue either blocks until
// space frees up (backpressure) or returns Dropped, per the policy chosen
// at Start.
//
// Pushing an index already pending overwrites the earlier packet:
// last-write-wins for idempotent retries.
func (w *Writer) Push(pkt packet.Packet, idx uint64) uint64 {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return w.sinkDirect(pkt, idx)
	}
	w.mu.Unlock()

	size := uint64(pkt.Len())
	buf := w.getBuf(pkt.Len())
	clone := pkt.CloneInto(buf)

	w.mu.Lock()
	if !w.dropOnFull {
		for w.active && w.queuedBytes+size > w.maxBytes {
			w.hasSpace.Wait()
		}
		if !w.active {
			// The Writer shut down while we were blocked; finish the write
			// on the calling goroutine like any synchronous Push.
			w.mu.Unlock()
			w.putBuf(buf)
			return w.sinkDirect(pkt, idx)
		}
	}

	if w.queuedBytes+size > w.maxBytes {
		w.mu.Unlock()
		w.putBuf(buf)
		w.stats.dropped.Add(1)
		if w.metrics != nil {
			w.metrics.ObservePush(false, int64(size))
		}
		logger.Debug("Writer dropping packet", "name", w.name, "idx", idx)
		return Dropped
	}

	if old, ok := w.pending[idx]; ok {
		w.queuedBytes -= uint64(old.pkt.Len())
		w.putBuf(old.buf)
	} else {
		heap.Push(&w.order, idx)
	}
	w.pending[idx] = entry{pkt: clone, buf: buf}
	w.queuedBytes += size
	pos := w.rankLocked(idx)
	queued := int64(w.queuedBytes)
	// Record occupancy under the mutex so it cannot overwrite a later value
	// stored by a drain worker.
	w.stats.observeQueued(queued)
	w.mu.Unlock()

	w.nonEmpty.Signal()
	w.stats.accepted.Add(1)
	if w.metrics != nil {
		w.metrics.ObservePush(true, int64(size))
		w.metrics.RecordQueuedBytes(queued)
	}
	return pos
}

// drain is one worker goroutine. It repeatedly extracts the smallest pending
// index under the mutex, calls the sink outside it, and signals waiting
// producers. Workers keep draining after Stop until the queue is empty.
func (w *Writer) drain(id int) {
	defer w.wg.Done()

	w.mu.Lock()
	for w.active || len(w.pending) > 0 {
		if len(w.pending) == 0 {
			w.nonEmpty.Wait()
			continue
		}
		idx := heap.Pop(&w.order).(uint64)
		e := w.pending[idx]
		delete(w.pending, idx)
		w.queuedBytes -= uint64(e.pkt.Len())
		queued := int64(w.queuedBytes)
		w.stats.queuedBytes.Store(queued)
		w.mu.Unlock()

		start := time.Now()
		if _, err := w.sink(e.pkt, idx); err != nil {
			logger.Error("Writer sink failed",
				"name", w.name, "worker", id, "idx", idx, "error", err)
		}
		w.putBuf(e.buf)
		w.stats.sunk.Add(1)
		if w.metrics != nil {
			w.metrics.ObserveSink(int64(e.pkt.Len()), time.Since(start))
			w.metrics.RecordQueuedBytes(queued)
		}
		w.hasSpace.Broadcast()

		w.mu.Lock()
	}
	w.mu.Unlock()
}

// sinkDirect runs the sink on the calling goroutine (synchronous mode).
func (w *Writer) sinkDirect(pkt packet.Packet, idx uint64) uint64 {
	w.stats.sunk.Add(1)
	start := time.Now()
	res, err := w.sink(pkt, idx)
	if err != nil {
		logger.Error("Writer sink failed", "name", w.name, "idx", idx, "error", err)
	}
	if w.metrics != nil {
		w.metrics.ObserveSink(int64(pkt.Len()), time.Since(start))
	}
	return res
}

// rankLocked returns the position of idx among the pending indices.
// Caller must hold the mutex.
func (w *Writer) rankLocked(idx uint64) uint64 {
	var pos uint64
	for _, other := range w.order {
		if other < idx {
			pos++
		}
	}
	return pos
}

func (w *Writer) getBuf(size int) []byte {
	if w.pool != nil {
		return w.pool.Get(size)
	}
	return bufpool.Get(size)
}

func (w *Writer) putBuf(buf []byte) {
	if w.pool != nil {
		w.pool.Put(buf)
		return
	}
	bufpool.Put(buf)
}

// indexHeap is a min-heap of packet indices. Each pending index appears at
// most once; Push checks the pending map before inserting.
type indexHeap []uint64

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(uint64)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
