package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Packet Basics
// ============================================================================

func TestPacketBasics(t *testing.T) {
	t.Run("EmptyPacket", func(t *testing.T) {
		p := Empty()
		assert.True(t, p.IsEmpty())
		assert.Zero(t, p.Len())
	})

	t.Run("OpaquePacket", func(t *testing.T) {
		p := NewOpaque([]byte{1, 2, 3})
		assert.False(t, p.IsEmpty())
		assert.Equal(t, 3, p.Len())
		assert.True(t, p.Shape.IsZero())
	})

	t.Run("ShapeByteAccounting", func(t *testing.T) {
		s := Shape{Width: 4, Height: 3, Channels: 2, ElemSize: 1}
		assert.Equal(t, 24, s.NumBytes())
		assert.Equal(t, 12, s.Area())
		assert.Equal(t, 2, s.PixelBytes())
	})

	t.Run("CloneDetachesStorage", func(t *testing.T) {
		src := []byte{1, 2, 3, 4}
		p := NewOpaque(src)
		c := p.Clone()
		src[0] = 99
		assert.Equal(t, byte(1), c.Data[0])
	})

	t.Run("CloneIntoUsesCallerBuffer", func(t *testing.T) {
		p := NewOpaque([]byte{5, 6, 7})
		dst := make([]byte, 8)
		c := p.CloneInto(dst)
		assert.Equal(t, []byte{5, 6, 7}, c.Data)
		assert.Equal(t, byte(5), dst[0])
	})

	t.Run("Equal", func(t *testing.T) {
		s := Shape{Width: 1, Height: 3, Channels: 1, ElemSize: 1}
		a := New([]byte{1, 2, 3}, s)
		b := New([]byte{1, 2, 3}, s)
		assert.True(t, a.Equal(b))
		assert.False(t, a.Equal(NewOpaque([]byte{1, 2, 3})))
	})
}

// ============================================================================
// Transpose
// ============================================================================

func TestTranspose(t *testing.T) {
	t.Run("SwapsAxes", func(t *testing.T) {
		// 3x2 single-channel image:
		//   1 2 3
		//   4 5 6
		p := New([]byte{1, 2, 3, 4, 5, 6},
			Shape{Width: 3, Height: 2, Channels: 1, ElemSize: 1})

		out, err := Transpose(p)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Shape.Width)
		assert.Equal(t, 3, out.Shape.Height)
		assert.Equal(t, []byte{1, 4, 2, 5, 3, 6}, out.Data)
	})

	t.Run("KeepsPixelsIntact", func(t *testing.T) {
		// 2x1 image with 2-byte pixels.
		p := New([]byte{1, 2, 3, 4},
			Shape{Width: 2, Height: 1, Channels: 2, ElemSize: 1})

		out, err := Transpose(p)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, out.Data)
		assert.Equal(t, 1, out.Shape.Width)
		assert.Equal(t, 2, out.Shape.Height)
	})

	t.Run("RoundTrips", func(t *testing.T) {
		p := New([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			Shape{Width: 4, Height: 3, Channels: 1, ElemSize: 1})
		once, err := Transpose(p)
		require.NoError(t, err)
		twice, err := Transpose(once)
		require.NoError(t, err)
		assert.True(t, p.Equal(twice))
	})

	t.Run("RejectsOpaquePacket", func(t *testing.T) {
		_, err := Transpose(NewOpaque([]byte{1}))
		assert.Error(t, err)
	})

	t.Run("RejectsShapeMismatch", func(t *testing.T) {
		p := New([]byte{1, 2}, Shape{Width: 3, Height: 3, Channels: 1, ElemSize: 1})
		_, err := Transpose(p)
		assert.Error(t, err)
	})
}

// ============================================================================
// Channel Padding
// ============================================================================

func TestPadChannels(t *testing.T) {
	t.Run("PadsThreeToFour", func(t *testing.T) {
		p := New([]byte{1, 2, 3, 4, 5, 6},
			Shape{Width: 2, Height: 1, Channels: 3, ElemSize: 1})

		out, err := PadChannels(p, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, out.Shape.Channels)
		assert.Equal(t, []byte{1, 2, 3, 0xFF, 4, 5, 6, 0xFF}, out.Data)
	})

	t.Run("NoopWhenAlreadyWide", func(t *testing.T) {
		p := New([]byte{1, 2, 3, 4},
			Shape{Width: 1, Height: 1, Channels: 4, ElemSize: 1})
		out, err := PadChannels(p, 4)
		require.NoError(t, err)
		assert.Equal(t, p.Data, out.Data)
	})

	t.Run("RejectsNarrowing", func(t *testing.T) {
		p := New([]byte{1, 2, 3}, Shape{Width: 1, Height: 1, Channels: 3, ElemSize: 1})
		_, err := PadChannels(p, 1)
		assert.Error(t, err)
	})
}

// ============================================================================
// Nearest-Neighbour Resize
// ============================================================================

func TestResizeNearest(t *testing.T) {
	t.Run("Doubles", func(t *testing.T) {
		p := New([]byte{1, 2, 3, 4},
			Shape{Width: 2, Height: 2, Channels: 1, ElemSize: 1})

		out, err := ResizeNearest(p, 4, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, out.Shape.Width)
		assert.Equal(t, []byte{
			1, 1, 2, 2,
			1, 1, 2, 2,
			3, 3, 4, 4,
			3, 3, 4, 4,
		}, out.Data)
	})

	t.Run("Halves", func(t *testing.T) {
		p := New([]byte{
			1, 1, 2, 2,
			1, 1, 2, 2,
			3, 3, 4, 4,
			3, 3, 4, 4,
		}, Shape{Width: 4, Height: 4, Channels: 1, ElemSize: 1})

		out, err := ResizeNearest(p, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, out.Data)
	})

	t.Run("NoopOnSameSize", func(t *testing.T) {
		p := New([]byte{1, 2, 3, 4},
			Shape{Width: 2, Height: 2, Channels: 1, ElemSize: 1})
		out, err := ResizeNearest(p, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, p.Data, out.Data)
	})

	t.Run("RejectsInvalidTarget", func(t *testing.T) {
		p := New([]byte{1}, Shape{Width: 1, Height: 1, Channels: 1, ElemSize: 1})
		_, err := ResizeNearest(p, 0, 4)
		assert.Error(t, err)
	})
}
