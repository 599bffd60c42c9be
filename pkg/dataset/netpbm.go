// This file contains a minimal binary netpbm codec (P5 grayscale, P6 color).
// Netpbm keeps the payload bytes uncompressed and interleaved, which is
// exactly the in-memory layout the pipeline caches, so decode and encode are
// header parsing plus one copy.
package dataset

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/marmos91/framefeed/pkg/packet"
)

// Decoder turns a stored file into a packet.
type Decoder interface {
	// Decode parses the file bytes into a packet. The returned packet owns
	// its payload.
	Decode(data []byte) (packet.Packet, error)
}

// RawDecoder passes file bytes through as an opaque, shapeless packet.
type RawDecoder struct{}

func (RawDecoder) Decode(data []byte) (packet.Packet, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return packet.NewOpaque(out), nil
}

// NetpbmDecoder parses binary PGM (P5) and PPM (P6) images into 8-bit
// image packets.
type NetpbmDecoder struct{}

func (NetpbmDecoder) Decode(data []byte) (packet.Packet, error) {
	if len(data) < 2 || data[0] != 'P' {
		return packet.Empty(), fmt.Errorf("netpbm: missing magic number")
	}

	var channels int
	switch data[1] {
	case '5':
		channels = 1
	case '6':
		channels = 3
	default:
		return packet.Empty(), fmt.Errorf("netpbm: unsupported format P%c", data[1])
	}

	fields, payload, err := parseHeader(data[2:])
	if err != nil {
		return packet.Empty(), err
	}
	width, height, maxVal := fields[0], fields[1], fields[2]
	if width <= 0 || height <= 0 {
		return packet.Empty(), fmt.Errorf("netpbm: invalid dimensions %dx%d", width, height)
	}
	if maxVal != 255 {
		return packet.Empty(), fmt.Errorf("netpbm: unsupported max value %d", maxVal)
	}

	shape := packet.Shape{Width: width, Height: height, Channels: channels, ElemSize: 1}
	if len(payload) < shape.NumBytes() {
		return packet.Empty(), fmt.Errorf("netpbm: payload is %d bytes, header implies %d",
			len(payload), shape.NumBytes())
	}
	out := make([]byte, shape.NumBytes())
	copy(out, payload)
	return packet.New(out, shape), nil
}

// parseHeader reads the three numeric header fields (width, height, max
// value), skipping whitespace and '#' comments, and returns the remaining
// payload after the single whitespace byte that terminates the header.
func parseHeader(data []byte) ([3]int, []byte, error) {
	var fields [3]int
	pos := 0
	for i := 0; i < 3; i++ {
		// Skip whitespace and comment lines.
		for pos < len(data) {
			c := data[pos]
			if c == '#' {
				nl := bytes.IndexByte(data[pos:], '\n')
				if nl < 0 {
					return fields, nil, fmt.Errorf("netpbm: unterminated comment")
				}
				pos += nl + 1
				continue
			}
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
				pos++
				continue
			}
			break
		}
		start := pos
		for pos < len(data) && data[pos] >= '0' && data[pos] <= '9' {
			pos++
		}
		if start == pos {
			return fields, nil, fmt.Errorf("netpbm: truncated header")
		}
		v, err := strconv.Atoi(string(data[start:pos]))
		if err != nil {
			return fields, nil, fmt.Errorf("netpbm: bad header field: %w", err)
		}
		fields[i] = v
	}
	if pos >= len(data) {
		return fields, nil, fmt.Errorf("netpbm: missing payload")
	}
	// Exactly one whitespace byte separates the header from the payload.
	return fields, data[pos+1:], nil
}

// EncodeNetpbm serialises an 8-bit image packet as binary PGM or PPM.
// 4-channel packets are narrowed back to 3 channels (the alignment padding
// is not stored).
func EncodeNetpbm(pkt packet.Packet) ([]byte, error) {
	s := pkt.Shape
	if s.IsZero() || s.ElemSize != 1 {
		return nil, fmt.Errorf("netpbm: packet is not 8-bit imagery")
	}

	data := pkt.Data
	channels := s.Channels
	if channels == 4 {
		// Drop the alignment channel.
		narrowed := make([]byte, s.Area()*3)
		for i := 0; i < s.Area(); i++ {
			copy(narrowed[i*3:i*3+3], data[i*4:i*4+3])
		}
		data = narrowed
		channels = 3
	}

	var magic string
	switch channels {
	case 1:
		magic = "P5"
	case 3:
		magic = "P6"
	default:
		return nil, fmt.Errorf("netpbm: unsupported channel count %d", s.Channels)
	}

	header := fmt.Sprintf("%s\n%d %d\n255\n", magic, s.Width, s.Height)
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	out = append(out, data...)
	return out, nil
}
