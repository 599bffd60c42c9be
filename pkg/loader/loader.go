// Package loader pairs two precachers over a dataset backend.
//
// A Loader owns one Precacher for input packets and one for ground-truth
// packets, and exposes the synchronous GetInput/GetGT pair the algorithm
// consumes. Geometric normalisation (axis transposition, channel padding for
// 4-byte alignment, nearest-neighbour resampling to the declared per-index
// size) happens inside the loader callbacks handed to the precachers, so the
// cached bytes are already in their final shape and no work remains on the
// hot path.
package loader

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/framefeed/pkg/packet"
	"github.com/marmos91/framefeed/pkg/precache"
)

// Size is a packet geometry in pixels. The zero Size means "no constraint".
type Size struct {
	Width  int
	Height int
}

// IsZero reports whether the size carries no constraint.
func (s Size) IsZero() bool {
	return s == Size{}
}

// Area returns the number of pixels.
func (s Size) Area() int {
	return s.Width * s.Height
}

// Source is the dataset backend contract.
//
// Implementations load raw packets from storage and describe their declared
// geometry. All methods must be safe to call from the precacher worker
// goroutines; Input and GT must be deterministic for a given index.
type Source interface {
	// PacketCount returns the total number of packets in the batch.
	PacketCount() uint64

	// Input loads the raw input packet at the given index.
	Input(idx uint64) (packet.Packet, error)

	// GT loads the raw ground-truth packet at the given index. Indices
	// without ground truth yield an empty packet.
	GT(idx uint64) (packet.Packet, error)

	// InputSize returns the declared target size for the input at idx.
	InputSize(idx uint64) Size

	// InputOrigSize returns the size the input is stored at.
	InputOrigSize(idx uint64) Size

	// GTSize returns the declared target size for the ground truth at idx.
	GTSize(idx uint64) Size

	// GTOrigSize returns the size the ground truth is stored at.
	GTOrigSize(idx uint64) Size

	// InputTransposed reports whether the input at idx is stored transposed.
	InputTransposed(idx uint64) bool

	// GTTransposed reports whether the ground truth at idx is stored
	// transposed.
	GTTransposed(idx uint64) bool

	// FourByteAligned reports whether consumers require 4-byte pixel
	// alignment (3-channel packets are padded to 4 channels).
	FourByteAligned() bool
}

// ErrNilSource is returned when constructing a Loader without a backend.
var ErrNilSource = errors.New("loader: nil dataset source")

// Config holds optional loader settings.
type Config struct {
	// Metrics is handed to both precachers (nil for no metrics).
	Metrics precache.Metrics
}

// Loader feeds an algorithm from a dataset backend through two precachers.
type Loader struct {
	src   Source
	input *precache.Precacher
	gt    *precache.Precacher

	processed  atomic.Uint64
	finalCount uint64
	finishOnce sync.Once
	doneCh     chan struct{}
}

// New creates a Loader over the given dataset source.
func New(src Source, cfg Config) (*Loader, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	l := &Loader{
		src:    src,
		doneCh: make(chan struct{}),
	}

	var err error
	l.input, err = precache.New(l.loadInput, precache.Config{
		Name:    "input",
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	l.gt, err = precache.New(l.loadGT, precache.Config{
		Name:    "gt",
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// StartPrecaching spins up the input precacher, and the ground-truth
// precacher as well when usingGT is set. bufferBytes is the per-precacher
// byte budget.
func (l *Loader) StartPrecaching(usingGT bool, bufferBytes uint64) error {
	if err := l.input.Start(bufferBytes); err != nil {
		return fmt.Errorf("start input precaching: %w", err)
	}
	if usingGT {
		if err := l.gt.Start(bufferBytes); err != nil {
			l.input.Stop()
			return fmt.Errorf("start gt precaching: %w", err)
		}
	}
	return nil
}

// StopPrecaching shuts both precachers down.
func (l *Loader) StopPrecaching() {
	l.input.Stop()
	l.gt.Stop()
}

// GetInput returns the normalised input packet at idx. The packet is valid
// until the next GetInput call.
func (l *Loader) GetInput(idx uint64) (packet.Packet, error) {
	return l.input.Get(idx)
}

// GetGT returns the normalised ground-truth packet at idx. The packet is
// valid until the next GetGT call.
func (l *Loader) GetGT(idx uint64) (packet.Packet, error) {
	return l.gt.Get(idx)
}

// InputStats returns the input precacher's counters.
func (l *Loader) InputStats() precache.StatsSnapshot {
	return l.input.Stats()
}

// GTStats returns the ground-truth precacher's counters.
func (l *Loader) GTStats() precache.StatsSnapshot {
	return l.gt.Stats()
}

// loadInput is the callback handed to the input precacher.
func (l *Loader) loadInput(idx uint64) (packet.Packet, error) {
	if idx >= l.src.PacketCount() {
		return packet.Empty(), nil
	}
	pkt, err := l.src.Input(idx)
	if err != nil || pkt.IsEmpty() {
		return pkt, err
	}
	return l.normalise(pkt,
		l.src.InputTransposed(idx),
		l.src.InputOrigSize(idx),
		l.src.InputSize(idx))
}

// loadGT is the callback handed to the ground-truth precacher.
func (l *Loader) loadGT(idx uint64) (packet.Packet, error) {
	if idx >= l.src.PacketCount() {
		return packet.Empty(), nil
	}
	pkt, err := l.src.GT(idx)
	if err != nil || pkt.IsEmpty() {
		return pkt, err
	}
	return l.normalise(pkt,
		l.src.GTTransposed(idx),
		l.src.GTOrigSize(idx),
		l.src.GTSize(idx))
}

// normalise applies the geometric pipeline to an image packet: verify the
// stored size, undo transposition, pad to 4 channels when alignment demands
// it, and resample to the declared target size. Opaque packets pass through
// untouched.
func (l *Loader) normalise(pkt packet.Packet, transposed bool, orig, target Size) (packet.Packet, error) {
	if pkt.Shape.IsZero() {
		return pkt, nil
	}
	if !orig.IsZero() && (pkt.Shape.Width != orig.Width || pkt.Shape.Height != orig.Height) {
		return packet.Empty(), fmt.Errorf(
			"loader: packet is %dx%d, backend declared %dx%d",
			pkt.Shape.Width, pkt.Shape.Height, orig.Width, orig.Height)
	}

	var err error
	if transposed {
		if pkt, err = packet.Transpose(pkt); err != nil {
			return packet.Empty(), err
		}
	}
	if l.src.FourByteAligned() && pkt.Shape.Channels == 3 {
		if pkt, err = packet.PadChannels(pkt, 4); err != nil {
			return packet.Empty(), err
		}
	}
	if !target.IsZero() && target.Area() > 0 &&
		(pkt.Shape.Width != target.Width || pkt.Shape.Height != target.Height) {
		if pkt, err = packet.ResizeNearest(pkt, target.Width, target.Height); err != nil {
			return packet.Empty(), err
		}
	}
	return pkt, nil
}

// ============================================================================
// Processed-packet accounting
// ============================================================================

// MarkProcessed records that the algorithm finished one packet.
func (l *Loader) MarkProcessed() {
	l.processed.Add(1)
}

// Processed returns the number of packets processed so far.
func (l *Loader) Processed() uint64 {
	return l.processed.Load()
}

// FinishProcessing freezes the processed count. It is idempotent.
func (l *Loader) FinishProcessing() {
	l.finishOnce.Do(func() {
		l.finalCount = l.processed.Load()
		close(l.doneCh)
	})
}

// WaitProcessed blocks until FinishProcessing has been called and returns
// the final processed count.
func (l *Loader) WaitProcessed() uint64 {
	<-l.doneCh
	return l.finalCount
}
