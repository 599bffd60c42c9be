package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/framefeed/internal/logger"
	"github.com/marmos91/framefeed/pkg/loader"
	"github.com/marmos91/framefeed/pkg/packet"
)

// DefaultExtensions are the file extensions scanned for packets.
var DefaultExtensions = []string{".pgm", ".ppm"}

// DirConfig configures a DirSource.
type DirConfig struct {
	// InputDir is the directory holding the input frames.
	InputDir string

	// GTDir is the optional directory holding ground-truth masks. Masks are
	// paired with inputs by file stem; when no stem matches and the file
	// counts are equal, the pairing falls back to index order.
	GTDir string

	// Extensions filters the scanned files. Defaults to DefaultExtensions.
	Extensions []string

	// Scale rescales declared packet sizes. Zero or one means no scaling.
	Scale float64

	// FourByteAligned pads 3-channel packets to 4 channels downstream.
	FourByteAligned bool

	// Transposed marks the stored frames as axis-swapped.
	Transposed bool

	// Decoder parses stored files. Defaults to NetpbmDecoder.
	Decoder Decoder
}

// DirSource is a directory-walk dataset backend. It probes every packet
// once at construction to learn the per-index geometry, then serves loads
// straight from disk.
//
// DirSource implements loader.Source.
type DirSource struct {
	cfg DirConfig

	inputPaths []string
	inputOrig  []loader.Size
	inputNorm  []loader.Size

	gtPaths map[uint64]string
	gtOrig  map[uint64]loader.Size
	gtNorm  map[uint64]loader.Size

	maxSize      loader.Size
	constantSize bool
}

// NewDirSource scans the configured directories and probes packet geometry.
func NewDirSource(cfg DirConfig) (*DirSource, error) {
	if cfg.InputDir == "" {
		return nil, fmt.Errorf("dataset: input directory not set")
	}
	if cfg.Decoder == nil {
		cfg.Decoder = NetpbmDecoder{}
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}

	s := &DirSource{
		cfg:          cfg,
		gtPaths:      make(map[uint64]string),
		gtOrig:       make(map[uint64]loader.Size),
		gtNorm:       make(map[uint64]loader.Size),
		constantSize: true,
	}

	paths, err := listPackets(cfg.InputDir, cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("dataset: scan input dir: %w", err)
	}

	var lastOrig loader.Size
	for _, path := range paths {
		orig, err := s.probe(path)
		if err != nil {
			// Unreadable entries are skipped, matching the tolerant scan
			// behaviour datasets in the wild require.
			logger.Warn("Skipping unreadable packet", "path", path, "error", err)
			continue
		}
		if len(s.inputPaths) > 0 && orig != lastOrig {
			s.constantSize = false
		}
		lastOrig = orig
		s.inputPaths = append(s.inputPaths, path)
		s.inputOrig = append(s.inputOrig, orig)
		norm := s.normalSize(orig)
		s.inputNorm = append(s.inputNorm, norm)
		if norm.Width > s.maxSize.Width {
			s.maxSize.Width = norm.Width
		}
		if norm.Height > s.maxSize.Height {
			s.maxSize.Height = norm.Height
		}
	}
	if len(s.inputPaths) == 0 {
		return nil, fmt.Errorf("dataset: no input packets found in %s", cfg.InputDir)
	}

	if cfg.GTDir != "" {
		if err := s.pairGT(); err != nil {
			return nil, err
		}
	}

	logger.Info("Scanned dataset",
		"path", cfg.InputDir,
		"packets", len(s.inputPaths),
		"gt_packets", len(s.gtPaths),
		"constant_size", s.constantSize)

	return s, nil
}

// listPackets returns the matching files of dir in lexical order.
func listPackets(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				paths = append(paths, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	return paths, nil
}

// probe decodes one file to learn its stored geometry.
func (s *DirSource) probe(path string) (loader.Size, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return loader.Size{}, err
	}
	pkt, err := s.cfg.Decoder.Decode(data)
	if err != nil {
		return loader.Size{}, err
	}
	return loader.Size{Width: pkt.Shape.Width, Height: pkt.Shape.Height}, nil
}

// normalSize maps a stored size to the size consumers see after
// normalisation: transposition undone, scale factor applied.
func (s *DirSource) normalSize(orig loader.Size) loader.Size {
	if orig.IsZero() {
		return orig
	}
	if s.cfg.Transposed {
		orig.Width, orig.Height = orig.Height, orig.Width
	}
	if s.cfg.Scale != 1 {
		orig.Width = int(float64(orig.Width) * s.cfg.Scale)
		orig.Height = int(float64(orig.Height) * s.cfg.Scale)
	}
	return orig
}

// pairGT matches ground-truth files to input indices by file stem, falling
// back to positional pairing when the counts line up and no stem matches.
func (s *DirSource) pairGT() error {
	gtFiles, err := listPackets(s.cfg.GTDir, s.cfg.Extensions)
	if err != nil {
		return fmt.Errorf("dataset: scan gt dir: %w", err)
	}

	byStem := make(map[string]string, len(gtFiles))
	for _, path := range gtFiles {
		byStem[stem(path)] = path
	}

	matched := 0
	for idx, inputPath := range s.inputPaths {
		if gtPath, ok := byStem[stem(inputPath)]; ok {
			s.gtPaths[uint64(idx)] = gtPath
			matched++
		}
	}

	if matched == 0 && len(gtFiles) == len(s.inputPaths) {
		for idx, path := range gtFiles {
			s.gtPaths[uint64(idx)] = path
		}
	}

	for idx, path := range s.gtPaths {
		orig, err := s.probe(path)
		if err != nil {
			logger.Warn("Skipping unreadable gt packet", "path", path, "error", err)
			delete(s.gtPaths, idx)
			continue
		}
		s.gtOrig[idx] = orig
		s.gtNorm[idx] = s.normalSize(orig)
	}
	return nil
}

// stem returns the file name without directory or extension.
func stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// MaxSize returns the largest normalised packet size in the batch. It is
// the natural basis for sizing precache buffers.
func (s *DirSource) MaxSize() loader.Size {
	return s.maxSize
}

// ConstantSize reports whether every input packet shares one geometry.
func (s *DirSource) ConstantSize() bool {
	return s.constantSize
}

// InputPath returns the backing file of the input at idx.
func (s *DirSource) InputPath(idx uint64) string {
	return s.inputPaths[idx]
}

// ============================================================================
// loader.Source implementation
// ============================================================================

func (s *DirSource) PacketCount() uint64 {
	return uint64(len(s.inputPaths))
}

func (s *DirSource) Input(idx uint64) (packet.Packet, error) {
	if idx >= s.PacketCount() {
		return packet.Empty(), nil
	}
	data, err := os.ReadFile(s.inputPaths[idx])
	if err != nil {
		return packet.Empty(), fmt.Errorf("dataset: read input %d: %w", idx, err)
	}
	pkt, err := s.cfg.Decoder.Decode(data)
	if err != nil {
		return packet.Empty(), fmt.Errorf("dataset: decode input %d: %w", idx, err)
	}
	return pkt, nil
}

func (s *DirSource) GT(idx uint64) (packet.Packet, error) {
	path, ok := s.gtPaths[idx]
	if !ok {
		return packet.Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return packet.Empty(), fmt.Errorf("dataset: read gt %d: %w", idx, err)
	}
	pkt, err := s.cfg.Decoder.Decode(data)
	if err != nil {
		return packet.Empty(), fmt.Errorf("dataset: decode gt %d: %w", idx, err)
	}
	return pkt, nil
}

func (s *DirSource) InputSize(idx uint64) loader.Size {
	if idx >= s.PacketCount() {
		return loader.Size{}
	}
	return s.inputNorm[idx]
}

func (s *DirSource) InputOrigSize(idx uint64) loader.Size {
	if idx >= s.PacketCount() {
		return loader.Size{}
	}
	return s.inputOrig[idx]
}

func (s *DirSource) GTSize(idx uint64) loader.Size {
	return s.gtNorm[idx]
}

func (s *DirSource) GTOrigSize(idx uint64) loader.Size {
	return s.gtOrig[idx]
}

func (s *DirSource) InputTransposed(uint64) bool {
	return s.cfg.Transposed
}

func (s *DirSource) GTTransposed(uint64) bool {
	return s.cfg.Transposed
}

func (s *DirSource) FourByteAligned() bool {
	return s.cfg.FourByteAligned
}
