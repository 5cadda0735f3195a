package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestProcessJPEGMetadata(t *testing.T) {
	n := NewNormalizer(300, 85)
	data := encodeJPEG(t, solidImage(100, 100, color.RGBA{120, 30, 200, 255}))

	result, err := n.Process(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := result.Metadata
	if m.Width != 100 || m.Height != 100 {
		t.Errorf("expected 100x100, got %dx%d", m.Width, m.Height)
	}
	if m.Format != "jpeg" {
		t.Errorf("expected format jpeg, got %q", m.Format)
	}
	if m.ColorMode != "RGB" {
		t.Errorf("expected color mode RGB, got %q", m.ColorMode)
	}
	if m.SizeBytes != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), m.SizeBytes)
	}
	if m.Exif == nil {
		t.Error("exif map should never be nil")
	}
}

// withExifSegment splices a minimal EXIF APP1 segment into an encoded JPEG
// right after the SOI marker. The TIFF block carries two IFD0 entries:
// Make = "GoCam" and Orientation = 1.
func withExifSegment(t *testing.T, jpegData []byte) []byte {
	t.Helper()
	if len(jpegData) < 2 || jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		t.Fatal("input does not start with a JPEG SOI marker")
	}

	tiff := []byte{
		'I', 'I', 0x2A, 0x00, // little-endian TIFF header
		0x08, 0x00, 0x00, 0x00, // IFD0 at offset 8
		0x02, 0x00, // 2 entries
		// Make (0x010F), ASCII, 6 bytes at offset 38
		0x0F, 0x01, 0x02, 0x00, 0x06, 0x00, 0x00, 0x00, 0x26, 0x00, 0x00, 0x00,
		// Orientation (0x0112), SHORT, value 1
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no next IFD
		'G', 'o', 'C', 'a', 'm', 0x00,
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)
	segLen := len(payload) + 2

	out := make([]byte, 0, len(jpegData)+4+len(payload))
	out = append(out, jpegData[:2]...)
	out = append(out, 0xFF, 0xE1, byte(segLen>>8), byte(segLen))
	out = append(out, payload...)
	out = append(out, jpegData[2:]...)
	return out
}

func TestProcessExtractsAllowListedExif(t *testing.T) {
	n := NewNormalizer(300, 85)
	data := withExifSegment(t, encodeJPEG(t, solidImage(100, 100, color.RGBA{90, 60, 30, 255})))

	result, err := n.Process(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exif := result.Metadata.Exif
	if got := exif["Make"]; got != "GoCam" {
		t.Errorf("expected Make %q, got %q (exif: %v)", "GoCam", got, exif)
	}
	if _, ok := exif["Orientation"]; !ok {
		t.Errorf("expected Orientation to be extracted, got %v", exif)
	}
}

func TestProcessCorruptBuffer(t *testing.T) {
	n := NewNormalizer(300, 85)
	_, err := n.Process([]byte("definitely not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestProcessTruncatedJPEG(t *testing.T) {
	n := NewNormalizer(300, 85)
	data := encodeJPEG(t, solidImage(50, 50, color.RGBA{10, 10, 10, 255}))

	// Keep the header so DecodeConfig passes, cut the pixel data
	_, err := n.Process(data[:40])
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage for truncated data, got %v", err)
	}
}

func TestProcessEmptyBuffer(t *testing.T) {
	n := NewNormalizer(300, 85)
	_, err := n.Process(nil)
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestProcessTransparentPNGCompositedOntoWhite(t *testing.T) {
	n := NewNormalizer(300, 85)

	// Fully transparent image; after compositing every pixel should be white
	src := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	data := encodePNG(t, src)

	result, err := n.Process(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, g, b, _ := result.Image.At(10, 10).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("expected white after compositing, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
}

func TestProcessOpaqueImageUnchanged(t *testing.T) {
	n := NewNormalizer(300, 85)
	data := encodePNG(t, solidImage(20, 20, color.RGBA{200, 10, 10, 255}))

	result, err := n.Process(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, g, b, _ := result.Image.At(5, 5).RGBA()
	if r>>8 != 200 || g>>8 != 10 || b>>8 != 10 {
		t.Errorf("opaque pixels should be preserved, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
}

func TestThumbnailWithinBound(t *testing.T) {
	n := NewNormalizer(100, 85)
	data := encodeJPEG(t, solidImage(400, 200, color.RGBA{50, 100, 150, 255}))

	result, err := n.Process(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Thumbnail) == 0 {
		t.Fatal("expected a thumbnail")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(result.Thumbnail))
	if err != nil {
		t.Fatalf("thumbnail does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("thumbnail should be jpeg, got %q", format)
	}
	if cfg.Width > 100 || cfg.Height > 100 {
		t.Errorf("thumbnail exceeds bound: %dx%d", cfg.Width, cfg.Height)
	}
	// Aspect ratio preserved: 400x200 fits to 100x50
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("expected 100x50 thumbnail, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestThumbnailNeverUpscales(t *testing.T) {
	n := NewNormalizer(300, 85)
	data := encodeJPEG(t, solidImage(40, 30, color.RGBA{50, 100, 150, 255}))

	result, err := n.Process(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(result.Thumbnail))
	if err != nil {
		t.Fatalf("thumbnail does not decode: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Errorf("small images should not be upscaled, got %dx%d", cfg.Width, cfg.Height)
	}
}
