package sprite

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/rawblock/geronimo-captcha/internal/imaging"
)

func samplePhoto() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func defaultOptions() Options {
	return Options{CellSize: 90, Noise: imaging.DefaultNoiseOptions()}
}

func TestComposeReturnsDigitInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	result, err := Compose(samplePhoto(), defaultOptions(), rng)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if result.CorrectDigit < 1 || result.CorrectDigit > 9 {
		t.Errorf("CorrectDigit = %d, want in [1,9]", result.CorrectDigit)
	}
}

func TestComposeProducesFullSizeCanvas(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	opts := defaultOptions()
	result, err := Compose(samplePhoto(), opts, rng)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	wantSide := opts.CellSize*gridSize + (gridSize-1)*tileSpacing
	if result.Image.Bounds().Dx() != wantSide || result.Image.Bounds().Dy() != wantSide {
		t.Errorf("canvas size = %v, want %dx%d", result.Image.Bounds(), wantSide, wantSide)
	}
}

func TestComposeRejectsNonPositiveCellSize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	opts := defaultOptions()
	opts.CellSize = 0
	if _, err := Compose(samplePhoto(), opts, rng); err == nil {
		t.Error("Compose() with cell_size=0 returned no error")
	}
}

func TestCorrectDigitVariesAcrossGenerations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seen := make(map[uint8]bool)
	for i := 0; i < 100; i++ {
		result, err := Compose(samplePhoto(), defaultOptions(), rng)
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		seen[result.CorrectDigit] = true
	}
	if len(seen) < 2 {
		t.Errorf("saw only %d distinct correct digits across 100 generations, want shuffling to vary it", len(seen))
	}
}

func TestPickTileAnglesHasExactlyOneZeroAngle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		angles, correctIndex := pickTileAngles(rng)
		if len(angles) != tilesPerSprite {
			t.Fatalf("len(angles) = %d, want %d", len(angles), tilesPerSprite)
		}

		zeroCount := 0
		for _, a := range angles {
			if a == CorrectAngle {
				zeroCount++
			}
		}
		if zeroCount != 1 {
			t.Fatalf("found %d zero-degree tiles, want exactly 1", zeroCount)
		}
		if angles[correctIndex] != CorrectAngle {
			t.Fatalf("correctIndex %d does not point at the zero-degree tile", correctIndex)
		}
	}
}

func TestPickTileAnglesDrawsWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	angles, _ := pickTileAngles(rng)

	seen := make(map[float64]int)
	for _, a := range angles {
		seen[a]++
	}
	for angle, count := range seen {
		if count > 1 {
			t.Errorf("angle %v appears %d times, want at most 1", angle, count)
		}
	}
}

func TestClampIntKeepsTileInsideCell(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{v: 5, lo: 0, hi: 10, want: 5},
		{v: -5, lo: 0, hi: 10, want: 0},
		{v: 50, lo: 0, hi: 10, want: 10},
		{v: 5, lo: 7, hi: 3, want: 7}, // degenerate range: clamp to lo
	}
	for _, c := range cases {
		if got := clampInt(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clampInt(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}
