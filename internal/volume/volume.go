// Package volume implements the Volume Loader: picking the pyramid
// level whose side best fits a caller's display threshold, reading
// every slice in it, and stacking the result into a 3-D array, per
// spec.md §4.10.
package volume

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jikhanjung/ctpyramid/internal/errs"
	"github.com/jikhanjung/ctpyramid/internal/imgcodec"
)

// LevelInfo describes one discovered on-disk level.
type LevelInfo struct {
	Index  int
	Width  int
	Height int
	Count  int
}

// Volume is a stack of normalized 8-bit slices, shape
// (Count, Height, Width), row-major within each slice.
type Volume struct {
	Slices        [][]uint8
	Width         int
	Height        int
	Count         int
	SelectedLevel int
	Levels        []LevelInfo
}

// side is the longer of width and height.
func side(w, h int) int {
	if h > w {
		return h
	}
	return w
}

// discoverLevels walks <base>/.thumbnail/1, /2, … until a missing
// directory is found, returning the contiguous run that exists.
func discoverLevels(base string) ([]LevelInfo, error) {
	var levels []LevelInfo
	for k := 1; ; k++ {
		dir := filepath.Join(base, ".thumbnail", strconv.Itoa(k))
		entries, err := os.ReadDir(dir)
		if err != nil {
			break
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && imgcodec.SupportedExtensions[extOf(e.Name())] {
				names = append(names, e.Name())
			}
		}
		if len(names) == 0 {
			break
		}
		sort.Strings(names)
		w, h, err := imgcodec.Dimensions(filepath.Join(dir, names[0]))
		if err != nil {
			return nil, errs.Wrap(errs.KindCorruptedImage, "reading dimensions of level "+strconv.Itoa(k), err)
		}
		levels = append(levels, LevelInfo{Index: k, Width: w, Height: h, Count: len(names)})
	}
	return levels, nil
}

func extOf(name string) string {
	e := filepath.Ext(name)
	if len(e) > 0 && e[0] == '.' {
		e = e[1:]
	}
	return e
}

// selectLevel picks the lowest-numbered level whose side is strictly
// less than threshold; if none qualifies, the highest available
// level is used, per spec.md §4.10 step 2.
func selectLevel(levels []LevelInfo, threshold int) LevelInfo {
	for _, lv := range levels {
		if side(lv.Width, lv.Height) < threshold {
			return lv
		}
	}
	return levels[len(levels)-1]
}

// Load discovers the available pyramid levels under base, selects one
// against threshold, reads and normalizes every slice in it, and
// stacks them into a Volume.
func Load(base string, threshold int) (*Volume, error) {
	levels, err := discoverLevels(base)
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return nil, errs.New(errs.KindNoImagesFound, "no pyramid levels found under "+filepath.Join(base, ".thumbnail"))
	}

	chosen := selectLevel(levels, threshold)
	dir := filepath.Join(base, ".thumbnail", strconv.Itoa(chosen.Index))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.KindDirectoryNotReadable, "reading "+dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && imgcodec.SupportedExtensions[extOf(e.Name())] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	slices := make([][]uint8, 0, len(names))
	for _, name := range names {
		px, err := imgcodec.Read(filepath.Join(dir, name))
		if err != nil {
			return nil, errs.Wrap(errs.KindCorruptedImage, "reading "+name, err)
		}
		slices = append(slices, normalize8(px))
	}

	return &Volume{
		Slices:        slices,
		Width:         chosen.Width,
		Height:        chosen.Height,
		Count:         len(slices),
		SelectedLevel: chosen.Index,
		Levels:        levels,
	}, nil
}

// normalize8 converts a decoded slice to 8-bit, per spec.md §4.10
// step 4: u16 narrows by >>8 (equivalent to dividing by 256); u8
// passes through unchanged.
func normalize8(p *imgcodec.Pixels) []uint8 {
	if p.Depth == imgcodec.Depth8 {
		return p.U8
	}
	out := make([]uint8, len(p.U16))
	for i, v := range p.U16 {
		out[i] = uint8(v >> 8)
	}
	return out
}
