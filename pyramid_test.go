package pyramid

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jikhanjung/ctpyramid/internal/imgcodec"
)

func writeSlice8(t *testing.T, path string, w, h int, v uint8) {
	t.Helper()
	px := make([]uint8, w*h)
	for i := range px {
		px[i] = v
	}
	if err := imgcodec.Write(&imgcodec.Pixels{Width: w, Height: h, Depth: imgcodec.Depth8, U8: px}, path, false); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
}

func writeSlice16(t *testing.T, path string, w, h int, row func(y int) uint16) {
	t.Helper()
	px := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		v := row(y)
		for x := 0; x < w; x++ {
			px[y*w+x] = v
		}
	}
	if err := imgcodec.Write(&imgcodec.Pixels{Width: w, Height: h, Depth: imgcodec.Depth16, U16: px}, path, false); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
}

// TestBuild_MinimalEvenRun is spec.md's S1: 10 constant 256x256 slices,
// default options, one level of 5 constant 128x128 files.
func TestBuild_MinimalEvenRun(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeSlice8(t, filepath.Join(dir, sliceName(i)), 256, 256, 100)
	}

	pattern, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(pattern, 0)
	if len(plan.Levels) != 1 {
		t.Fatalf("len(plan.Levels) = %d, want 1", len(plan.Levels))
	}

	report, err := Build(dir, pattern, plan, DefaultOptions(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Levels[0].Produced != 5 {
		t.Fatalf("level 1 produced = %d, want 5", report.Levels[0].Produced)
	}

	for i := 0; i < 5; i++ {
		px, err := imgcodec.Read(filepath.Join(dir, ".thumbnail", "1", denseFilename(i)))
		if err != nil {
			t.Fatal(err)
		}
		if px.Width != 128 || px.Height != 128 || px.U8[0] != 100 {
			t.Fatalf("level 1 file %d = %+v, want 128x128 constant 100", i, px)
		}
	}

	vol, err := LoadVolume(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if vol.Count != 5 || vol.Width != 128 || vol.Height != 128 {
		t.Fatalf("volume shape = (%d,%d,%d), want (5,128,128)", vol.Count, vol.Height, vol.Width)
	}
	for _, s := range vol.Slices {
		if s[0] != 100 {
			t.Fatalf("volume slice value = %d, want 100", s[0])
		}
	}
}

// TestBuild_OddCount is spec.md's S2: 11 input files, level 1 has 6
// files (file 5 is a single-image pass-through), level 2 has 3 files.
// A max size of 64 is used so that the 64x64 level 2 is planned; the
// default of 512 would stop after the 128x128 level 1.
func TestBuild_OddCount(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 11; i++ {
		writeSlice8(t, filepath.Join(dir, sliceName(i)), 256, 256, 100)
	}

	pattern, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(pattern, 64)

	report, err := Build(dir, pattern, plan, DefaultOptions(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Levels[0].Produced != 6 {
		t.Fatalf("level 1 produced = %d, want 6", report.Levels[0].Produced)
	}
	if len(report.Levels) > 1 && report.Levels[1].Produced != 3 {
		t.Fatalf("level 2 produced = %d, want 3", report.Levels[1].Produced)
	}

	// File 5 (the lone trailing input) passes through as a 2x
	// downsample, not an average, so its value is unchanged.
	last, err := imgcodec.Read(filepath.Join(dir, ".thumbnail", "1", denseFilename(5)))
	if err != nil {
		t.Fatal(err)
	}
	if last.U8[0] != 100 {
		t.Fatalf("level 1 file 5 pixel = %d, want 100", last.U8[0])
	}
}

// TestBuild_U16Preservation is spec.md's S4: u16 input averages
// exactly without overflow, and LoadVolume normalizes by x >> 8.
func TestBuild_U16Preservation(t *testing.T) {
	dir := t.TempDir()
	values := []uint16{0, 20000, 40000, 65535}
	for i, v := range values {
		writeSlice16(t, filepath.Join(dir, sliceName(i)), 256, 256, func(int) uint16 { return v })
	}

	pattern, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(pattern, 0)
	if _, err := Build(dir, pattern, plan, DefaultOptions(), nil, nil); err != nil {
		t.Fatal(err)
	}

	px, err := imgcodec.Read(filepath.Join(dir, ".thumbnail", "1", denseFilename(0)))
	if err != nil {
		t.Fatal(err)
	}
	if px.Depth != imgcodec.Depth16 || px.Width != 128 || px.Height != 128 {
		t.Fatalf("level 1 file 0 = %+v, want 128x128 u16", px)
	}
	wantAvg := uint16((uint32(values[0]) + uint32(values[1])) / 2)
	if px.U16[0] != wantAvg {
		t.Fatalf("averaged pixel = %d, want %d", px.U16[0], wantAvg)
	}

	vol, err := LoadVolume(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if vol.Slices[0][0] != uint8(wantAvg>>8) {
		t.Fatalf("volume slice 0 value = %d, want %d", vol.Slices[0][0], uint8(wantAvg>>8))
	}
}

// TestBuild_ResumeAfterCancellation is spec.md's S5: the partial output
// of a cancelled earlier run (three level-1 files) is pre-seeded on
// disk, then Build runs with the same options and must leave those
// files untouched while producing the remaining two.
func TestBuild_ResumeAfterCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeSlice8(t, filepath.Join(dir, sliceName(i)), 256, 256, 100)
	}

	pattern, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(pattern, 0)

	opts := DefaultOptions()

	// Simulate a prior run that was cancelled after the first three
	// pairs completed: their outputs already exist on disk with a
	// sentinel value distinguishable from a fresh average.
	thumbDir := filepath.Join(dir, ".thumbnail", "1")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		writeSlice8(t, filepath.Join(thumbDir, denseFilename(i)), 128, 128, 222)
	}

	report, err := Build(dir, pattern, plan, opts, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Cancelled {
		t.Fatal("unexpected cancellation")
	}
	if report.Levels[0].Produced != 5 {
		t.Fatalf("level 1 produced = %d, want 5", report.Levels[0].Produced)
	}

	// The three pre-existing files are untouched (loaded, not
	// regenerated); the remaining two carry the real averaged value.
	for i := 0; i < 3; i++ {
		px, err := imgcodec.Read(filepath.Join(thumbDir, denseFilename(i)))
		if err != nil {
			t.Fatal(err)
		}
		if px.U8[0] != 222 {
			t.Errorf("file %d = %d, want untouched sentinel 222", i, px.U8[0])
		}
	}
	for i := 3; i < 5; i++ {
		px, err := imgcodec.Read(filepath.Join(thumbDir, denseFilename(i)))
		if err != nil {
			t.Fatal(err)
		}
		if px.U8[0] != 100 {
			t.Errorf("file %d = %d, want freshly generated 100", i, px.U8[0])
		}
	}
}

// TestBuild_CancellationLeavesNoOutput exercises the immediate-cancel
// path at the orchestrator level: Build must report Cancelled and
// must not have produced any level-1 files.
func TestBuild_CancellationLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeSlice8(t, filepath.Join(dir, sliceName(i)), 256, 256, 100)
	}

	pattern, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(pattern, 0)

	cancel := new(atomic.Bool)
	cancel.Store(true)

	report, err := Build(dir, pattern, plan, DefaultOptions(), nil, cancel)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Cancelled {
		t.Fatal("expected Cancelled=true")
	}
	if entries, _ := os.ReadDir(filepath.Join(dir, ".thumbnail", "1")); len(entries) != 0 {
		t.Fatalf("files under .thumbnail/1 after immediate cancel = %d, want 0", len(entries))
	}
}

// TestBuild_MissingMiddleSlice is spec.md's S6: removing one input
// file still yields five level-1 outputs, the orphaned pair falling
// back to its surviving member.
func TestBuild_MissingMiddleSlice(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		if i == 5 {
			continue
		}
		writeSlice8(t, filepath.Join(dir, sliceName(i)), 256, 256, 100)
	}

	pattern, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan(pattern, 0)

	report, err := Build(dir, pattern, plan, DefaultOptions(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Levels[0].Produced != 5 {
		t.Fatalf("level 1 produced = %d, want 5 (pair 2 falls back to its surviving member)", report.Levels[0].Produced)
	}
}

func sliceName(n int) string {
	return fmt.Sprintf("slice_%04d.tif", n)
}
