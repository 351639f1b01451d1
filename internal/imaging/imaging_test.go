package imaging

import (
	"image"
	"image/color"
	"math/rand"
	"testing"
)

func solidSquare(size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestRotateZeroDegreesIsExactCopy(t *testing.T) {
	src := solidSquare(10, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	got := RotateAboutCenter(src, 0)

	if got.Bounds() != src.Bounds() {
		t.Fatalf("bounds changed: got %v, want %v", got.Bounds(), src.Bounds())
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if got.NRGBAAt(x, y) != src.NRGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) changed under 0-degree rotation", x, y)
			}
		}
	}
}

func TestRotateFillsExposedCornersWhite(t *testing.T) {
	src := solidSquare(40, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	rotated := RotateAboutCenter(src, 45)

	corner := rotated.NRGBAAt(0, 0)
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if corner != white {
		t.Errorf("corner after 45-degree rotation = %v, want white fill %v", corner, white)
	}
}

func TestResizeProducesRequestedDimensions(t *testing.T) {
	src := solidSquare(100, color.NRGBA{A: 255})

	for _, filter := range []ResizeFilter{NearestNeighbor, Lanczos} {
		got := Resize(src, 40, 40, filter)
		if got.Bounds().Dx() != 40 || got.Bounds().Dy() != 40 {
			t.Errorf("filter %v: Resize size = %v, want 40x40", filter, got.Bounds())
		}
	}
}

func TestFlipHorizontalMirrorsPixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	left := color.NRGBA{R: 1, A: 255}
	right := color.NRGBA{R: 2, A: 255}
	src.SetNRGBA(0, 0, left)
	src.SetNRGBA(1, 0, right)

	flipped := FlipHorizontal(src)
	if flipped.NRGBAAt(0, 0) != right || flipped.NRGBAAt(1, 0) != left {
		t.Error("FlipHorizontal did not mirror pixels")
	}
}

func TestWatermarkWithNoiseStampsMarks(t *testing.T) {
	src := solidSquare(50, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	opts := DefaultNoiseOptions()
	opts.BlurSigma = 0 // isolate the stamping pass from the blur pass

	rng := rand.New(rand.NewSource(1))
	out := WatermarkWithNoise(src, opts, rng)

	changed := 0
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			if out.NRGBAAt(x, y) != src.NRGBAAt(x, y) {
				changed++
			}
		}
	}
	if changed == 0 {
		t.Error("watermark pass left the image unchanged")
	}
}

func TestWatermarkRespectsDisabledChannels(t *testing.T) {
	src := solidSquare(20, color.NRGBA{A: 255})
	opts := DefaultNoiseOptions()
	opts.Red, opts.Green, opts.Blue = false, false, true
	opts.BlurSigma = 0
	opts.Count = 400
	opts.ColorLo, opts.ColorHi = 50, 200

	rng := rand.New(rand.NewSource(2))
	out := WatermarkWithNoise(src, opts, rng)

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			p := out.NRGBAAt(x, y)
			if p.R != 0 || p.G != 0 {
				t.Fatalf("pixel (%d,%d) has disabled channel set: %v", x, y, p)
			}
		}
	}
}

func TestEncodeJPEGStartsWithSOIMarker(t *testing.T) {
	src := solidSquare(16, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	buf, mime, err := Encode(src, JPEG(70))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", mime)
	}
	if len(buf) < 3 || buf[0] != 0xFF || buf[1] != 0xD8 || buf[2] != 0xFF {
		t.Errorf("JPEG output missing SOI marker, got % X", buf[:min(8, len(buf))])
	}
}

func TestEncodeWebPStartsWithRIFFHeader(t *testing.T) {
	src := solidSquare(16, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	buf, mime, err := Encode(src, WebP(75, false))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if mime != "image/webp" {
		t.Errorf("mime = %q, want image/webp", mime)
	}
	if len(buf) < 4 || string(buf[:4]) != "RIFF" {
		t.Errorf("WebP output missing RIFF header, got % X", buf[:min(8, len(buf))])
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
