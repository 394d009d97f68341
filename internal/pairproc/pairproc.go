// Package pairproc implements the Pair Processor: averaging two
// same-shape slices and 2x block-downsampling the result, per
// spec.md §4.5. It is the only package that performs pixel arithmetic;
// the engine packages call it once per task and hand the result to
// the codec adapter.
package pairproc

import (
	"github.com/jikhanjung/ctpyramid/internal/buffers"
	"github.com/jikhanjung/ctpyramid/internal/errs"
	"github.com/jikhanjung/ctpyramid/internal/imgcodec"
)

// Process averages a and b (when b is present) and block-downsamples
// the result 2x, returning a new Pixels at half the input's shape
// (rounded down). When b is nil, the "averaged" array is a itself,
// per spec.md §4.5's single-image path. a and b, when both present,
// must share width, height, and depth.
func Process(a, b *imgcodec.Pixels) (*imgcodec.Pixels, error) {
	if a == nil {
		return nil, errs.New(errs.KindUnexpected, "pair processor: source_a is nil")
	}
	if b != nil && (a.Width != b.Width || a.Height != b.Height || a.Depth != b.Depth) {
		return nil, errs.New(errs.KindUnexpected, "pair processor: source_a/source_b shape or depth mismatch")
	}

	switch a.Depth {
	case imgcodec.Depth8:
		return downsample8(averaged8(a, b)), nil
	case imgcodec.Depth16:
		return downsample16(averaged16(a, b)), nil
	default:
		return nil, errs.New(errs.KindUnexpected, "pair processor: unsupported depth")
	}
}

// averaged8 returns the element-wise integer mean of a and b (or a
// itself when b is absent), accumulating in a widened uint16 row to
// avoid overflow, per spec.md's u8->u16 discipline.
func averaged8(a, b *imgcodec.Pixels) *imgcodec.Pixels {
	if b == nil {
		return a
	}
	n := a.Width * a.Height
	out := make([]uint8, n)
	acc := buffers.GetU16Row(n)
	defer buffers.PutU16Row(acc)
	for i := 0; i < n; i++ {
		acc[i] = uint16(a.U8[i]) + uint16(b.U8[i])
	}
	for i := 0; i < n; i++ {
		out[i] = uint8(acc[i] / 2)
	}
	return &imgcodec.Pixels{Width: a.Width, Height: a.Height, Depth: imgcodec.Depth8, U8: out}
}

// averaged16 is averaged8's 16-bit counterpart, widening into a
// uint32 accumulator row (u16->u32 discipline).
func averaged16(a, b *imgcodec.Pixels) *imgcodec.Pixels {
	if b == nil {
		return a
	}
	n := a.Width * a.Height
	out := make([]uint16, n)
	acc := buffers.GetU32Row(n)
	defer buffers.PutU32Row(acc)
	for i := 0; i < n; i++ {
		acc[i] = uint32(a.U16[i]) + uint32(b.U16[i])
	}
	for i := 0; i < n; i++ {
		out[i] = uint16(acc[i] / 2)
	}
	return &imgcodec.Pixels{Width: a.Width, Height: a.Height, Depth: imgcodec.Depth16, U16: out}
}

// downsample8 2x block-averages p using non-overlapping 2x2 tiles,
// accumulating in a uint16 row per tile row pair to avoid overflow,
// and dropping any trailing odd row or column.
func downsample8(p *imgcodec.Pixels) *imgcodec.Pixels {
	outW, outH := p.Width/2, p.Height/2
	out := make([]uint8, outW*outH)
	for y := 0; y < outH; y++ {
		row0 := p.U8[(2*y)*p.Width : (2*y)*p.Width+p.Width]
		row1 := p.U8[(2*y+1)*p.Width : (2*y+1)*p.Width+p.Width]
		for x := 0; x < outW; x++ {
			sum := uint16(row0[2*x]) + uint16(row0[2*x+1]) + uint16(row1[2*x]) + uint16(row1[2*x+1])
			out[y*outW+x] = uint8(sum / 4)
		}
	}
	return &imgcodec.Pixels{Width: outW, Height: outH, Depth: imgcodec.Depth8, U8: out}
}

// downsample16 is downsample8's 16-bit counterpart, accumulating in
// uint32.
func downsample16(p *imgcodec.Pixels) *imgcodec.Pixels {
	outW, outH := p.Width/2, p.Height/2
	out := make([]uint16, outW*outH)
	for y := 0; y < outH; y++ {
		row0 := p.U16[(2*y)*p.Width : (2*y)*p.Width+p.Width]
		row1 := p.U16[(2*y+1)*p.Width : (2*y+1)*p.Width+p.Width]
		for x := 0; x < outW; x++ {
			sum := uint32(row0[2*x]) + uint32(row0[2*x+1]) + uint32(row1[2*x]) + uint32(row1[2*x+1])
			out[y*outW+x] = uint16(sum / 4)
		}
	}
	return &imgcodec.Pixels{Width: outW, Height: outH, Depth: imgcodec.Depth16, U16: out}
}
