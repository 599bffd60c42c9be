// This file contains the geometric normalisation transforms applied to image
// packets before they enter a cache: axis transposition, channel padding for
// 4-byte alignment, and nearest-neighbour resampling.
package packet

import "fmt"

// validateImage checks that the packet's payload matches its declared shape.
func validateImage(p Packet, op string) error {
	if p.Shape.IsZero() {
		return fmt.Errorf("%s: packet has no shape", op)
	}
	if p.Shape.NumBytes() != len(p.Data) {
		return fmt.Errorf("%s: payload is %d bytes, shape implies %d",
			op, len(p.Data), p.Shape.NumBytes())
	}
	return nil
}

// Transpose swaps the axes of an interleaved image packet, turning a W×H
// image into an H×W one. The result owns its payload.
func Transpose(p Packet) (Packet, error) {
	if err := validateImage(p, "transpose"); err != nil {
		return Empty(), err
	}
	w, h := p.Shape.Width, p.Shape.Height
	px := p.Shape.PixelBytes()
	out := make([]byte, len(p.Data))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * px
			dst := (x*h + y) * px
			copy(out[dst:dst+px], p.Data[src:src+px])
		}
	}
	shape := p.Shape
	shape.Width, shape.Height = h, w
	return Packet{Data: out, Shape: shape}, nil
}

// PadChannels widens each pixel to n channels, filling the added channels
// with 0xFF bytes. It is used to pad 3-channel frames to 4 channels when the
// consumer requires 4-byte pixel alignment. When the packet already has n
// channels it is returned unchanged; otherwise the result owns its payload.
func PadChannels(p Packet, n int) (Packet, error) {
	if err := validateImage(p, "pad channels"); err != nil {
		return Empty(), err
	}
	c := p.Shape.Channels
	if n < c {
		return Empty(), fmt.Errorf("pad channels: cannot narrow %d channels to %d", c, n)
	}
	if n == c {
		return p, nil
	}
	e := p.Shape.ElemSize
	srcPx := c * e
	dstPx := n * e
	out := make([]byte, p.Shape.Area()*dstPx)
	for i := 0; i < p.Shape.Area(); i++ {
		src := i * srcPx
		dst := i * dstPx
		copy(out[dst:dst+srcPx], p.Data[src:src+srcPx])
		for j := dst + srcPx; j < dst+dstPx; j++ {
			out[j] = 0xFF
		}
	}
	shape := p.Shape
	shape.Channels = n
	return Packet{Data: out, Shape: shape}, nil
}

// ResizeNearest resamples an image packet to w×h using nearest-neighbour
// interpolation. When the packet is already w×h it is returned unchanged;
// otherwise the result owns its payload.
func ResizeNearest(p Packet, w, h int) (Packet, error) {
	if err := validateImage(p, "resize"); err != nil {
		return Empty(), err
	}
	if w <= 0 || h <= 0 {
		return Empty(), fmt.Errorf("resize: invalid target size %dx%d", w, h)
	}
	srcW, srcH := p.Shape.Width, p.Shape.Height
	if srcW == w && srcH == h {
		return p, nil
	}
	px := p.Shape.PixelBytes()
	out := make([]byte, w*h*px)
	for y := 0; y < h; y++ {
		srcY := y * srcH / h
		srcRow := srcY * srcW * px
		dstRow := y * w * px
		for x := 0; x < w; x++ {
			srcX := x * srcW / w
			src := srcRow + srcX*px
			dst := dstRow + x*px
			copy(out[dst:dst+px], p.Data[src:src+px])
		}
	}
	shape := p.Shape
	shape.Width, shape.Height = w, h
	return Packet{Data: out, Shape: shape}, nil
}
