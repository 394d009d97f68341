// Package imgcodec reads and writes the 8- and 16-bit grayscale image
// formats a CT slice sequence can arrive in, and reports dimensions
// without decoding pixel data. It is the only package in this module
// that imports an image-decoding library directly; every other
// package works with the Pixels tagged union this package produces.
package imgcodec

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/jikhanjung/ctpyramid/internal/errs"
)

// Depth is the bit depth of a decoded or to-be-encoded slice.
type Depth int

const (
	Depth8  Depth = 8
	Depth16 Depth = 16
)

// Pixels is the tagged union spec.md §4.2 requires: a 2-D array of
// either u8 or u16 samples, shape (Height, Width), row-major.
type Pixels struct {
	Width, Height int
	Depth         Depth
	U8            []uint8  // valid when Depth == Depth8, len == Width*Height
	U16           []uint16 // valid when Depth == Depth16, len == Width*Height
}

// SupportedExtensions is the set of slice filename extensions the
// scanner and codec adapter recognize, case-folded, without the dot.
var SupportedExtensions = map[string]bool{
	"bmp": true, "jpg": true, "jpeg": true, "png": true, "tif": true, "tiff": true,
}

func extOf(path string) string {
	e := filepath.Ext(path)
	if len(e) > 0 && e[0] == '.' {
		e = e[1:]
	}
	return strings.ToLower(e)
}

// Dimensions returns a slice's width and height without decoding pixel
// data, using each format's config-only header parser.
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errs.Wrap(errs.KindCorruptedImage, "opening "+path, err)
	}
	defer f.Close()

	cfg, err := decodeConfig(f, extOf(path))
	if err != nil {
		return 0, 0, errs.Wrap(errs.KindCorruptedImage, "reading dimensions of "+path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// DetectBitDepth reports whether path is a 16-bit grayscale image (16)
// or anything else (8), per spec.md §4.2: only Gray16 is flagged 16;
// any other grayscale or color mode is flagged 8; an unrecognized mode
// is treated as 8.
func DetectBitDepth(path string) (Depth, error) {
	f, err := os.Open(path)
	if err != nil {
		return Depth8, errs.Wrap(errs.KindCorruptedImage, "opening "+path, err)
	}
	defer f.Close()

	cfg, err := decodeConfig(f, extOf(path))
	if err != nil {
		return Depth8, errs.Wrap(errs.KindCorruptedImage, "reading "+path, err)
	}
	if cfg.ColorModel == color.Gray16Model {
		return Depth16, nil
	}
	return Depth8, nil
}

func decodeConfig(r io.Reader, ext string) (image.Config, error) {
	switch ext {
	case "png":
		return png.DecodeConfig(r)
	case "jpg", "jpeg":
		return jpeg.DecodeConfig(r)
	case "bmp":
		return bmp.DecodeConfig(r)
	case "tif", "tiff":
		return tiff.DecodeConfig(r)
	default:
		return image.Config{}, errs.New(errs.KindInvalidImageFormat, "unsupported extension: "+ext)
	}
}

// Read decodes path fully into a Pixels tagged union, preserving bit
// depth: Gray16 sources decode to Depth16, everything else to Depth8
// (color sources are flattened to 8-bit grayscale via
// color.GrayModel.Convert).
func Read(path string) (*Pixels, error) {
	ext := extOf(path)
	if !SupportedExtensions[ext] {
		return nil, errs.New(errs.KindInvalidImageFormat, "unsupported extension: "+ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruptedImage, "opening "+path, err)
	}
	defer f.Close()

	img, err := decodeImage(f, ext)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruptedImage, "decoding "+path, err)
	}
	return toPixels(img), nil
}

func decodeImage(r io.Reader, ext string) (image.Image, error) {
	switch ext {
	case "png":
		return png.Decode(r)
	case "jpg", "jpeg":
		return jpeg.Decode(r)
	case "bmp":
		return bmp.Decode(r)
	case "tif", "tiff":
		return tiff.Decode(r)
	default:
		return nil, errs.New(errs.KindInvalidImageFormat, "unsupported extension: "+ext)
	}
}

// toPixels converts a decoded image.Image into the grayscale tagged
// union, taking the fast path for the two types the codecs actually
// hand back for CT slices (*image.Gray16, *image.Gray) and falling
// back to a per-pixel Gray16Model conversion for anything else.
func toPixels(img image.Image) *Pixels {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if g16, ok := img.(*image.Gray16); ok {
		out := make([]uint16, w*h)
		for y := 0; y < h; y++ {
			row := g16.Pix[y*g16.Stride : y*g16.Stride+w*2]
			for x := 0; x < w; x++ {
				out[y*w+x] = uint16(row[x*2])<<8 | uint16(row[x*2+1])
			}
		}
		return &Pixels{Width: w, Height: h, Depth: Depth16, U16: out}
	}

	if g8, ok := img.(*image.Gray); ok {
		out := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			copy(out[y*w:(y+1)*w], g8.Pix[y*g8.Stride:y*g8.Stride+w])
		}
		return &Pixels{Width: w, Height: h, Depth: Depth8, U8: out}
	}

	// Generic fallback: any other grayscale or color mode is flagged
	// 8-bit per spec.md §4.2, except Gray16 which is flagged 16.
	if img.ColorModel() == color.Gray16Model {
		out := make([]uint16, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				out[y*w+x] = c.Y
			}
		}
		return &Pixels{Width: w, Height: h, Depth: Depth16, U16: out}
	}
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			out[y*w+x] = c.Y
		}
	}
	return &Pixels{Width: w, Height: h, Depth: Depth8, U8: out}
}

func toImage(p *Pixels) image.Image {
	switch p.Depth {
	case Depth16:
		img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: p.U16[y*p.Width+x]})
			}
		}
		return img
	default:
		img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
		copy(img.Pix, p.U8)
		return img
	}
}

// Write encodes p to path, inferring the output format from path's
// extension. The compression flag only affects TIFF output, where it
// selects a lossless deflate codec when true and no compression when
// false, per spec.md §4.2.
func Write(p *Pixels, path string, compression bool) error {
	ext := extOf(path)
	if !SupportedExtensions[ext] {
		return errs.New(errs.KindInvalidImageFormat, "unsupported extension: "+ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.KindDirectoryNotWritable, "creating output directory for "+path, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.KindWriteFailed, "creating "+tmp, err)
	}

	img := toImage(p)
	encErr := encodeImage(f, img, ext, compression)
	closeErr := f.Close()
	if encErr != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindWriteFailed, "encoding "+path, encErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindWriteFailed, "closing "+tmp, closeErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindWriteFailed, "renaming into place "+path, err)
	}
	return nil
}

func encodeImage(w io.Writer, img image.Image, ext string, compression bool) error {
	switch ext {
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case "bmp":
		return bmp.Encode(w, img)
	case "tif", "tiff":
		opt := &tiff.Options{Compression: tiff.Uncompressed}
		if compression {
			opt.Compression = tiff.Deflate
		}
		return tiff.Encode(w, img, opt)
	default:
		return errs.New(errs.KindInvalidImageFormat, "unsupported extension: "+ext)
	}
}
