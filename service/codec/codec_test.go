package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestImagingDecodePNG(t *testing.T) {
	buf := encodePNG(t, 3, 2, func(x, y int) color.Color {
		return color.NRGBA{R: uint8(10 * x), G: uint8(100 + y), B: 200, A: 255}
	})

	px, err := NewImaging(0).Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if px.Width != 3 || px.Height != 2 {
		t.Fatalf("unexpected dimensions: %dx%d", px.Width, px.Height)
	}
	if len(px.Data) != 3*2*3 {
		t.Fatalf("unexpected data length: %d", len(px.Data))
	}

	// pixel (x=2, y=1) sits at row 1, column 2
	off := (1*3 + 2) * 3
	if px.Data[off] != 20 || px.Data[off+1] != 101 || px.Data[off+2] != 200 {
		t.Fatalf("unexpected pixel: %v", px.Data[off:off+3])
	}
}

func TestImagingDecodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}

	px, err := NewImaging(0).Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if px.Width != 16 || px.Height != 8 {
		t.Fatalf("unexpected dimensions: %dx%d", px.Width, px.Height)
	}
}

func TestImagingDecodeDownscales(t *testing.T) {
	buf := encodePNG(t, 40, 20, func(_, _ int) color.Color { return color.White })

	px, err := NewImaging(10).Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if px.Width != 10 || px.Height != 5 {
		t.Fatalf("unexpected dimensions after fit: %dx%d", px.Width, px.Height)
	}
	if len(px.Data) != 10*5*3 {
		t.Fatalf("unexpected data length: %d", len(px.Data))
	}
}

func TestImagingDecodeRejectsGarbage(t *testing.T) {
	svc := NewImaging(0)
	for name, buf := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
	} {
		if _, err := svc.Decode(buf); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestNewSelectsCodec(t *testing.T) {
	svc, err := New("imaging", 0)
	if err != nil || svc.Name() != "imaging" {
		t.Fatalf("New(imaging) = %v, %v", svc, err)
	}
	if _, err := New("webp", 0); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}
