package imgcodec

import (
	"path/filepath"
	"testing"
)

func makeConstant8(w, h int, value uint8) *Pixels {
	px := make([]uint8, w*h)
	for i := range px {
		px[i] = value
	}
	return &Pixels{Width: w, Height: h, Depth: Depth8, U8: px}
}

func makeConstant16(w, h int, value uint16) *Pixels {
	px := make([]uint16, w*h)
	for i := range px {
		px[i] = value
	}
	return &Pixels{Width: w, Height: h, Depth: Depth16, U16: px}
}

func TestWriteReadRoundTrip_TIFF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000.tif")
	want := makeConstant8(8, 8, 100)

	if err := Write(want, path, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Width != 8 || got.Height != 8 || got.Depth != Depth8 {
		t.Fatalf("got shape %dx%d depth %d", got.Width, got.Height, got.Depth)
	}
	for i, v := range got.U8 {
		if v != 100 {
			t.Fatalf("pixel %d = %d, want 100", i, v)
		}
	}
}

func TestWriteReadRoundTrip_TIFF16(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000.tif")
	want := makeConstant16(8, 8, 40000)

	if err := Write(want, path, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Depth != Depth16 {
		t.Fatalf("got depth %d, want 16", got.Depth)
	}
	for i, v := range got.U16 {
		if v != 40000 {
			t.Fatalf("pixel %d = %d, want 40000", i, v)
		}
	}
}

func TestDimensions_DoesNotRequireFullDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000.tif")
	if err := Write(makeConstant8(16, 12, 50), path, true); err != nil {
		t.Fatal(err)
	}
	w, h, err := Dimensions(path)
	if err != nil {
		t.Fatal(err)
	}
	if w != 16 || h != 12 {
		t.Errorf("Dimensions = %dx%d, want 16x12", w, h)
	}
}

func TestDetectBitDepth(t *testing.T) {
	dir := t.TempDir()
	p8 := filepath.Join(dir, "a.tif")
	p16 := filepath.Join(dir, "b.tif")
	if err := Write(makeConstant8(4, 4, 1), p8, false); err != nil {
		t.Fatal(err)
	}
	if err := Write(makeConstant16(4, 4, 1), p16, false); err != nil {
		t.Fatal(err)
	}
	if d, err := DetectBitDepth(p8); err != nil || d != Depth8 {
		t.Errorf("DetectBitDepth(8-bit) = %v, %v", d, err)
	}
	if d, err := DetectBitDepth(p16); err != nil || d != Depth16 {
		t.Errorf("DetectBitDepth(16-bit) = %v, %v", d, err)
	}
}

func TestWrite_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000.gif")
	err := Write(makeConstant8(2, 2, 0), path, false)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.tif"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
