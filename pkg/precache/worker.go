// This file contains the worker goroutine and the byte-bounded ring it owns.
//
// All ring state is local to the worker: the scratch buffer, the FIFO of
// live packet views, the head/tail byte offsets and the index bookkeeping.
// Nothing here is touched by the consumer goroutine, which only ever sees
// replies handed over the rendezvous channels.
package precache

import (
	"time"

	"github.com/marmos91/framefeed/internal/logger"
	"github.com/marmos91/framefeed/pkg/packet"
)

// slot is one live packet view inside the scratch buffer.
type slot struct {
	idx uint64
	off int
	pkt packet.Packet
}

// ring is the byte-level FIFO over the scratch buffer.
//
// Invariants:
//   - queue covers exactly the contiguous index range
//     [nextExpected, nextPrecache)
//   - occupied bytes never exceed capacity
//   - no packet straddles the wrap boundary; a packet that would straddle
//     is placed at offset 0 when the prefix before head is free
//   - hasLive reports whether head/tail delimit live bytes; an empty ring
//     and a freshly flushed one are the same state (hasLive false), and the
//     head offset is only meaningful while hasLive is true
type ring struct {
	scratch []byte
	queue   []slot

	headOff int
	tailOff int
	hasLive bool

	nextExpected uint64
	nextPrecache uint64
}

func newRing(capacity int) *ring {
	return &ring{scratch: make([]byte, capacity)}
}

// used returns the number of occupied bytes, including the bytes of a packet
// already delivered to the consumer but still protected until the next Get.
func (r *ring) used() int {
	if !r.hasLive {
		return 0
	}
	if r.headOff < r.tailOff {
		return r.tailOff - r.headOff
	}
	return len(r.scratch) - r.headOff + r.tailOff
}

// place finds a write offset for a packet of the given size, honouring the
// no-straddle rule. It returns -1 when the packet does not fit without
// overwriting live bytes.
func (r *ring) place(size int) int {
	if size >= len(r.scratch) {
		return -1
	}
	if !r.hasLive {
		return 0
	}
	if r.headOff <= r.tailOff {
		if r.tailOff+size < len(r.scratch) {
			return r.tailOff
		}
		// Would straddle the wrap boundary: jump to offset 0 when the
		// prefix before head is free.
		if size < r.headOff {
			return 0
		}
		return -1
	}
	// Already wrapped: tail must not catch up with head.
	if r.tailOff+size < r.headOff {
		return r.tailOff
	}
	return -1
}

// append copies the packet into the scratch buffer and enqueues a view of
// it. It returns false when the packet does not fit.
func (r *ring) append(pkt packet.Packet) bool {
	size := pkt.Len()
	off := r.place(size)
	if off < 0 {
		return false
	}
	view := r.scratch[off : off+size]
	copy(view, pkt.Data)
	cached := packet.Packet{Data: view, Shape: pkt.Shape}
	r.queue = append(r.queue, slot{idx: r.nextPrecache, off: off, pkt: cached})
	if !r.hasLive {
		r.headOff = off
		r.hasLive = true
	}
	r.tailOff = off + size
	r.nextPrecache++
	return true
}

// pop removes the oldest queued packet and advances head past it, keeping
// the popped packet's bytes protected (head points at its offset until the
// following pop or flush).
func (r *ring) pop() slot {
	s := r.queue[0]
	r.queue = r.queue[1:]
	r.headOff = s.off
	r.nextExpected = s.idx + 1
	return s
}

// flush discards every queued packet and marks the scratch buffer free.
func (r *ring) flush() {
	r.queue = r.queue[:0]
	r.hasLive = false
	r.headOff = 0
	r.tailOff = 0
}

// worker is the single goroutine owning the ring. It prefills from index 0,
// then alternates between serving requests and opportunistically topping up
// the cache until Stop.
func (p *Precacher) worker(capacity int) {
	defer close(p.doneCh)

	r := newRing(capacity)
	var last reply
	haveLast := false

	// Best-effort warm-up: enqueue from index 0 until the scratch is full,
	// the backend reports end-of-stream, or the prefill window elapses.
	deadline := time.Now().Add(prefillTimeout)
	for time.Now().Before(deadline) {
		pkt, err := p.load(r.nextPrecache)
		if err != nil {
			logger.Warn("Precacher prefill aborted",
				"name", p.name, "idx", r.nextPrecache, "error", err)
			break
		}
		if pkt.IsEmpty() || !r.append(pkt) {
			break
		}
		p.stats.fills.Add(1)
		if p.metrics != nil {
			p.metrics.RecordFill(int64(pkt.Len()))
		}
	}
	p.recordUsage(r)

	for {
		select {
		case <-p.stopCh:
			return
		case idx := <-p.reqCh:
			last = p.serve(r, idx, last, haveLast)
			haveLast = true
			p.recordUsage(r)
			p.replyCh <- last
		case <-time.After(queryTimeout):
			if r.used() < capacity/4 {
				p.fill(r)
				p.recordUsage(r)
			}
		}
	}
}

// serve answers one request. Three outcomes:
//
//  1. the request repeats the packet just delivered: re-publish it;
//  2. the request lies inside the cached window: fast-forward the FIFO,
//     discarding packets ahead of it, and deliver from the ring;
//  3. anything else (gap, backward jump, empty cache): flush and load
//     synchronously.
func (p *Precacher) serve(r *ring, idx uint64, last reply, haveLast bool) reply {
	if haveLast && r.nextExpected > 0 && idx == r.nextExpected-1 {
		p.stats.hits.Add(1)
		last.hit = true
		return last
	}
	if len(r.queue) > 0 && idx >= r.nextExpected && idx < r.nextPrecache {
		var s slot
		for {
			s = r.pop()
			if s.idx == idx {
				break
			}
		}
		p.stats.hits.Add(1)
		return reply{pkt: s.pkt, hit: true}
	}

	// Out-of-order request or the cache fell behind: discard everything and
	// answer on the spot. The reply aliases the loader's own storage, not
	// the scratch buffer.
	if len(r.queue) > 0 {
		p.stats.flushes.Add(1)
		if p.metrics != nil {
			p.metrics.RecordFlush()
		}
	}
	r.flush()
	pkt, err := p.load(idx)
	r.nextExpected = idx + 1
	r.nextPrecache = idx + 1
	p.stats.misses.Add(1)
	return reply{pkt: pkt, err: err}
}

// fill tops the ring up with up to fillBatch packets, stopping early when a
// packet no longer fits or the backend reports end-of-stream. Loader errors
// abort the pass but never kill the worker.
func (p *Precacher) fill(r *ring) {
	for count := 0; r.used() < len(r.scratch) && count < fillBatch; count++ {
		pkt, err := p.load(r.nextPrecache)
		if err != nil {
			logger.Warn("Precacher fill aborted",
				"name", p.name, "idx", r.nextPrecache, "error", err)
			return
		}
		if pkt.IsEmpty() || !r.append(pkt) {
			return
		}
		p.stats.fills.Add(1)
		if p.metrics != nil {
			p.metrics.RecordFill(int64(pkt.Len()))
		}
	}
}

func (p *Precacher) recordUsage(r *ring) {
	used := int64(r.used())
	p.stats.bytesCached.Store(used)
	if p.metrics != nil {
		p.metrics.RecordCacheUsage(used)
	}
}
