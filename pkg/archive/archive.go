// Package archive persists algorithm output packets.
//
// An Archiver is the natural sink behind a Writer: Save is shaped so that
// Sink(a) plugs straight into writer.New. The filesystem archiver
// mirrors the dataset layout (one file per packet, named after the packet
// index) and undoes the loader's geometric normalisation so archived files
// match the original dataset geometry.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/framefeed/pkg/dataset"
	"github.com/marmos91/framefeed/pkg/loader"
	"github.com/marmos91/framefeed/pkg/packet"
	"github.com/marmos91/framefeed/pkg/writer"
)

// Archiver persists indexed packets and loads them back.
type Archiver interface {
	// Save persists one packet. The returned value is the number of payload
	// bytes written.
	Save(pkt packet.Packet, idx uint64) (uint64, error)

	// Load reads a previously saved packet back.
	Load(idx uint64) (packet.Packet, error)
}

// Sink adapts an Archiver to a writer.SinkFunc.
func Sink(a Archiver) writer.SinkFunc {
	return a.Save
}

// FSConfig configures a filesystem archiver.
type FSConfig struct {
	// OutputDir is the directory packets are written into. It is created on
	// first use.
	OutputDir string

	// Prefix and Suffix frame the packet name in the file name, e.g.
	// "bin" + PacketName + ".pgm".
	Prefix string
	Suffix string

	// Total is the batch size, used for packet name width.
	Total uint64

	// Source optionally supplies the dataset geometry. When set, Save
	// undoes the loader's normalisation (transposes back and resamples to
	// the original per-index size) and Load re-applies it.
	Source loader.Source
}

// FSArchiver writes one file per packet under OutputDir.
//
// Image packets are stored as binary netpbm; opaque packets are stored
// verbatim.
type FSArchiver struct {
	cfg FSConfig
}

// NewFSArchiver validates the configuration and creates the output
// directory.
func NewFSArchiver(cfg FSConfig) (*FSArchiver, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("archive: output directory not set")
	}
	if cfg.Suffix == "" {
		return nil, errors.New("archive: output name suffix (file extension) not set")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("archive: create output dir: %w", err)
	}
	return &FSArchiver{cfg: cfg}, nil
}

// path returns the file backing the packet at idx.
func (a *FSArchiver) path(idx uint64) string {
	name := a.cfg.Prefix + dataset.PacketName(idx, a.cfg.Total) + a.cfg.Suffix
	return filepath.Join(a.cfg.OutputDir, name)
}

// Save persists one output packet, undoing the loader's geometry first.
func (a *FSArchiver) Save(pkt packet.Packet, idx uint64) (uint64, error) {
	out := pkt
	var err error

	if src := a.cfg.Source; src != nil && !out.Shape.IsZero() {
		if src.InputTransposed(idx) {
			if out, err = packet.Transpose(out); err != nil {
				return 0, fmt.Errorf("archive: save %d: %w", idx, err)
			}
		}
		orig := src.InputOrigSize(idx)
		if !orig.IsZero() && orig.Area() > 0 &&
			(out.Shape.Width != orig.Width || out.Shape.Height != orig.Height) {
			if out, err = packet.ResizeNearest(out, orig.Width, orig.Height); err != nil {
				return 0, fmt.Errorf("archive: save %d: %w", idx, err)
			}
		}
	}

	data := out.Data
	if !out.Shape.IsZero() {
		if data, err = dataset.EncodeNetpbm(out); err != nil {
			return 0, fmt.Errorf("archive: save %d: %w", idx, err)
		}
	}
	if err := os.WriteFile(a.path(idx), data, 0644); err != nil {
		return 0, fmt.Errorf("archive: save %d: %w", idx, err)
	}
	return uint64(len(data)), nil
}

// Load reads a packet back, re-applying the loader's geometry when a source
// is configured.
func (a *FSArchiver) Load(idx uint64) (packet.Packet, error) {
	data, err := os.ReadFile(a.path(idx))
	if err != nil {
		return packet.Empty(), fmt.Errorf("archive: load %d: %w", idx, err)
	}

	pkt, err := dataset.NetpbmDecoder{}.Decode(data)
	if err != nil {
		// Not netpbm: treat the file as an opaque payload.
		return packet.NewOpaque(data), nil
	}

	if src := a.cfg.Source; src != nil {
		if src.InputTransposed(idx) {
			if pkt, err = packet.Transpose(pkt); err != nil {
				return packet.Empty(), fmt.Errorf("archive: load %d: %w", idx, err)
			}
		}
		if src.FourByteAligned() && pkt.Shape.Channels == 3 {
			if pkt, err = packet.PadChannels(pkt, 4); err != nil {
				return packet.Empty(), fmt.Errorf("archive: load %d: %w", idx, err)
			}
		}
		size := src.InputSize(idx)
		if !size.IsZero() && size.Area() > 0 &&
			(pkt.Shape.Width != size.Width || pkt.Shape.Height != size.Height) {
			if pkt, err = packet.ResizeNearest(pkt, size.Width, size.Height); err != nil {
				return packet.Empty(), fmt.Errorf("archive: load %d: %w", idx, err)
			}
		}
	}
	return pkt, nil
}
