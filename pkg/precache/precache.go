// Package precache implements a single-producer packet precacher.
//
// A Precacher sits between a dataset backend and a synchronous consumer. It
// keeps a bounded, byte-budgeted ring of pre-decoded packets ahead of the
// consumer's current position so that sequential Get calls are served from
// memory instead of stalling on backend I/O. Out-of-order access is repaired
// transparently: requests inside the cached window fast-forward the ring,
// anything else flushes it and reloads synchronously.
//
// Exactly one worker goroutine owns the scratch buffer and all ring state.
// The consumer talks to it through a request/reply rendezvous, so no mutable
// state is shared across goroutines. Packets returned by Get are views into
// the scratch buffer and stay valid until the next Get call; consumers that
// need to retain bytes longer must Clone them.
//
// Concurrent Get calls on the same Precacher are not supported.
package precache

import (
	"errors"
	"time"

	"github.com/marmos91/framefeed/internal/bytesize"
	"github.com/marmos91/framefeed/internal/logger"
	"github.com/marmos91/framefeed/pkg/packet"
)

// Polling intervals for the request/reply rendezvous. These are internal
// retry periods, not user-facing deadlines: Get never fails on timeout.
const (
	// requestTimeout bounds one wait iteration of a consumer blocked on a
	// reply before it re-checks worker liveness.
	requestTimeout = 1 * time.Millisecond

	// queryTimeout bounds the worker's wait for the next request before it
	// considers topping up the cache.
	queryTimeout = 10 * time.Millisecond

	// prefillTimeout bounds the best-effort warm-up pass at startup.
	prefillTimeout = 5 * time.Second

	// fillBatch is the maximum number of packets loaded per opportunistic
	// fill pass.
	fillBatch = 10
)

// LoaderFunc loads the packet at the given index from the dataset backend.
//
// The callback must be deterministic: the same index always yields the same
// bytes. It may return an empty packet to signal end-of-stream or absence;
// empty packets are never cached. It must not call back into the Precacher.
type LoaderFunc func(idx uint64) (packet.Packet, error)

// Metrics provides observability for precacher operations.
//
// Implementations must be safe for concurrent use. A nil Metrics disables
// collection.
type Metrics interface {
	// ObserveGet records a served request. hit is true when the packet came
	// from the ring (or the re-publish path) without a synchronous load.
	ObserveGet(hit bool, bytes int64, duration time.Duration)

	// RecordCacheUsage records the bytes currently held by the ring.
	RecordCacheUsage(bytes int64)

	// RecordFlush records a cache flush caused by an out-of-order request.
	RecordFlush()

	// RecordFill records bytes appended by a prefill or fill pass.
	RecordFill(bytes int64)
}

// Config holds optional precacher settings.
type Config struct {
	// Name identifies this precacher in log output (e.g. "input", "gt").
	Name string

	// Metrics is an optional metrics collector (nil for no metrics).
	Metrics Metrics
}

// ErrNilLoader is returned when constructing a Precacher without a callback.
var ErrNilLoader = errors.New("precache: nil loader callback")

// reply carries a served packet (or the loader's error) back to the
// consumer, plus whether the ring answered it without a synchronous load.
type reply struct {
	pkt packet.Packet
	err error
	hit bool
}

// Precacher serves indexed packets with a bounded in-memory read-ahead ring.
//
// The zero value is not usable; construct with New. Start spawns the worker
// goroutine; before Start (or after Stop) Get degrades to direct synchronous
// loads with single-packet memoisation.
type Precacher struct {
	load    LoaderFunc
	name    string
	metrics Metrics

	started bool
	reqCh   chan uint64
	replyCh chan reply
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Single-packet memo of the most recent request. Only touched by the
	// consumer goroutine.
	lastIdx   uint64
	lastValid bool
	lastPkt   packet.Packet
	lastErr   error

	stats Stats
}

// New creates a Precacher around the given loader callback.
func New(load LoaderFunc, cfg Config) (*Precacher, error) {
	if load == nil {
		return nil, ErrNilLoader
	}
	name := cfg.Name
	if name == "" {
		name = "precache"
	}
	return &Precacher{
		load:    load,
		name:    name,
		metrics: cfg.Metrics,
	}, nil
}

// Start allocates the scratch buffer and spawns the worker goroutine.
//
// bufferBytes is clamped to MaxCacheSize. A zero bufferBytes leaves the
// precacher in bypass mode. Starting an already-started precacher restarts
// it with the new capacity.
func (p *Precacher) Start(bufferBytes uint64) error {
	if p.started {
		p.Stop()
	}
	if bufferBytes == 0 {
		return nil
	}
	if bufferBytes > MaxCacheSize {
		bufferBytes = MaxCacheSize
	}

	p.reqCh = make(chan uint64)
	p.replyCh = make(chan reply)
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.lastValid = false
	p.started = true

	logger.Debug("Starting precacher",
		"name", p.name,
		"capacity", bytesize.ByteSize(bufferBytes).String())

	go p.worker(int(bufferBytes))
	return nil
}

// Stop shuts the worker down and releases the scratch buffer. It is
// idempotent. A started Precacher that is dropped without Stop keeps its
// worker goroutine and scratch buffer alive.
func (p *Precacher) Stop() {
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
	<-p.doneCh

	logger.Debug("Stopped precacher", "name", p.name)
}

// Active reports whether the worker goroutine is running.
func (p *Precacher) Active() bool {
	return p.started
}

// Stats returns a snapshot of the precacher's counters.
func (p *Precacher) Stats() StatsSnapshot {
	return p.stats.snapshot()
}

// Get returns the packet at the given index.
//
// Repeating the previous index returns the memoised packet without touching
// the loader or the worker. When the precacher is not started, Get calls the
// loader directly. Otherwise the request is handed to the worker and Get
// blocks until the reply arrives; there is no per-call timeout.
//
// The returned packet is only guaranteed valid until the next Get call.
func (p *Precacher) Get(idx uint64) (packet.Packet, error) {
	if p.lastValid && idx == p.lastIdx {
		return p.lastPkt, p.lastErr
	}
	if !p.started {
		return p.memoise(idx, p.loadDirect(idx))
	}

	start := time.Now()

	// Publish the request. If the worker exits first (Stop racing with a
	// final Get), fall back to a direct load.
	select {
	case p.reqCh <- idx:
	case <-p.doneCh:
		return p.memoise(idx, p.loadDirect(idx))
	}

	retries := 0
	for {
		select {
		case r := <-p.replyCh:
			p.stats.served.Add(1)
			if p.metrics != nil {
				p.metrics.ObserveGet(r.hit, int64(r.pkt.Len()), time.Since(start))
			}
			return p.memoise(idx, r)
		case <-time.After(requestTimeout):
			retries++
			if retries%1000 == 0 {
				logger.Debug("Precacher still waiting on worker",
					"name", p.name, "idx", idx, "retries", retries)
			}
		case <-p.doneCh:
			return p.memoise(idx, p.loadDirect(idx))
		}
	}
}

// loadDirect serves a request on the calling goroutine, bypassing the ring.
func (p *Precacher) loadDirect(idx uint64) reply {
	p.stats.served.Add(1)
	p.stats.misses.Add(1)
	pkt, err := p.load(idx)
	return reply{pkt: pkt, err: err}
}

// memoise records the most recent request so an immediate repeat is free.
func (p *Precacher) memoise(idx uint64, r reply) (packet.Packet, error) {
	p.lastIdx = idx
	p.lastPkt = r.pkt
	p.lastErr = r.err
	p.lastValid = true
	return r.pkt, r.err
}
