// Package sprite composes the 3x3 challenge image: nine rotated tiles cut
// from a single source photograph, one of them upright, each labeled with
// its grid position and watermarked against automated OCR.
package sprite

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/rawblock/geronimo-captcha/internal/imaging"
)

// CorrectAngle is the rotation, in degrees, of the upright tile.
const CorrectAngle = 0.0

// incorrectAngles is the fixed pool eight of which are drawn per sprite.
// Chosen far enough from 0 and from each other that a human can spot the
// upright tile at a glance while a rotation-invariant classifier can't
// collapse them into one bucket.
var incorrectAngles = [11]float64{38, 88, 114, 138, 176, 200, 229, 255, 278, 314, 320}

const gridSize = 3
const tilesPerSprite = gridSize * gridSize

const (
	labelMargin  = 16
	labelMinR    = 0.13
	labelMaxR    = 0.17
	tileScaleMin = 0.5
	tileScaleMax = 0.8
	tileSpacing  = 4
)

// Options configures one composition.
type Options struct {
	CellSize int
	Noise    imaging.NoiseOptions
}

// Result is what Compose returns: the finished canvas and the digit (1-9)
// naming the upright tile.
type Result struct {
	Image        *image.NRGBA
	CorrectDigit uint8
}

// Compose resizes the already decoded source to one cell, builds the
// labeled 3x3 grid and returns the
// finished canvas alongside the digit of the upright cell. It is
// re-entrant: the only state it touches is the caller-supplied *rand.Rand
// and its own stack, so concurrent callers may invoke Compose on distinct
// sources and rngs without coordination.
func Compose(source image.Image, opts Options, rng *rand.Rand) (Result, error) {
	if opts.CellSize <= 0 {
		return Result{}, fmt.Errorf("sprite: cell_size must be positive, got %d", opts.CellSize)
	}

	cell := opts.CellSize
	normalized := imaging.Resize(source, cell, cell, imaging.NearestNeighbor)

	rotated, err := rotateAllAngles(normalized)
	if err != nil {
		return Result{}, err
	}

	labelFont, err := freetype.ParseFont(gobold.TTF)
	if err != nil {
		return Result{}, fmt.Errorf("sprite: parse embedded label font: %w", err)
	}

	tileAngles, correctIndex := pickTileAngles(rng)

	canvasSide := cell*gridSize + (gridSize-1)*tileSpacing
	canvas := image.NewNRGBA(image.Rect(0, 0, canvasSide, canvasSide))
	fillWhite(canvas)

	for i, angle := range tileAngles {
		col, row := i%gridSize, i/gridSize
		tile, ok := rotated[angle]
		if !ok {
			return Result{}, fmt.Errorf("sprite: invariant violated: angle %v missing a pre-rotated tile", angle)
		}
		decorateTile(canvas, tile, labelFont, cell, col, row, i+1, rng)
	}

	watermarked := imaging.WatermarkWithNoise(canvas, opts.Noise, rng)

	return Result{Image: watermarked, CorrectDigit: uint8(correctIndex + 1)}, nil
}

// pickTileAngles draws 8 of the 11 incorrect angles without replacement,
// appends the correct angle, and shuffles so the correct tile's grid
// position is uniform over 0..8.
func pickTileAngles(rng *rand.Rand) ([]float64, int) {
	order := rng.Perm(len(incorrectAngles))

	tileAngles := make([]float64, 0, tilesPerSprite)
	tileAngles = append(tileAngles, CorrectAngle)
	for _, idx := range order[:tilesPerSprite-1] {
		tileAngles = append(tileAngles, incorrectAngles[idx])
	}

	rng.Shuffle(len(tileAngles), func(i, j int) {
		tileAngles[i], tileAngles[j] = tileAngles[j], tileAngles[i]
	})

	correctIndex := 0
	for i, a := range tileAngles {
		if a == CorrectAngle {
			correctIndex = i
			break
		}
	}
	return tileAngles, correctIndex
}

// rotateAllAngles pre-rotates source once per unique angle in the fixed
// pool, fanning out one goroutine per angle — rotation is CPU-bound and
// independent per angle, so this is the composer's one data-parallel step.
// Correctness never depends on the fan-out; it behaves identically under
// GOMAXPROCS=1.
func rotateAllAngles(source image.Image) (map[float64]*image.NRGBA, error) {
	angles := make([]float64, 0, len(incorrectAngles)+1)
	angles = append(angles, CorrectAngle)
	angles = append(angles, incorrectAngles[:]...)

	out := make(map[float64]*image.NRGBA, len(angles))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, angle := range angles {
		wg.Add(1)
		go func(angle float64) {
			defer wg.Done()
			rotated := imaging.RotateAboutCenter(source, angle)
			mu.Lock()
			out[angle] = rotated
			mu.Unlock()
		}(angle)
	}
	wg.Wait()

	if len(out) != len(angles) {
		return nil, fmt.Errorf("sprite: expected %d pre-rotated angles, got %d", len(angles), len(out))
	}
	return out, nil
}

func fillWhite(canvas *image.NRGBA) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	bounds := canvas.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			canvas.SetNRGBA(x, y, white)
		}
	}
}

// decorateTile scales, optionally mirrors and jitters the pre-rotated tile
// for grid cell (col, row), pastes it onto canvas and draws its digit
// label.
func decorateTile(canvas *image.NRGBA, preRotated *image.NRGBA, labelFont *truetype.Font, cell, col, row, digit int, rng *rand.Rand) {
	scale := tileScaleMin + rng.Float64()*(tileScaleMax-tileScaleMin)
	size := int(math.Round(float64(cell) * scale))
	if size < 1 {
		size = 1
	}
	if size > cell {
		size = cell
	}

	shrunk := imaging.Resize(preRotated, size, size, imaging.Lanczos)
	if rng.Float64() < 0.5 {
		shrunk = imaging.FlipHorizontal(shrunk)
	}

	slack := cell - size
	offset := slack / 2

	jitterX, jitterY := 0, 0
	if offset > 0 {
		jitterX = rng.Intn(2*offset+1) - offset
		jitterY = rng.Intn(2*offset+1) - offset
	}

	cellMinX, cellMinY := col*(cell+tileSpacing), row*(cell+tileSpacing)
	x := clampInt(cellMinX+offset+jitterX, cellMinX, cellMinX+cell-size)
	y := clampInt(cellMinY+offset+jitterY, cellMinY, cellMinY+cell-size)

	pasteTile(canvas, shrunk, x, y)
	drawLabel(canvas, labelFont, digit, cellMinX, cellMinY, cell, rng)
}

func pasteTile(canvas *image.NRGBA, tile *image.NRGBA, x, y int) {
	bounds := tile.Bounds()
	for ty := bounds.Min.Y; ty < bounds.Max.Y; ty++ {
		for tx := bounds.Min.X; tx < bounds.Max.X; tx++ {
			canvas.SetNRGBA(x+tx-bounds.Min.X, y+ty-bounds.Min.Y, tile.NRGBAAt(tx, ty))
		}
	}
}

// drawLabel renders digit near the lower-right corner of the cell whose
// top-left is (cellMinX, cellMinY), margin px from each edge, with a small
// positional jitter and a dark randomized color.
func drawLabel(canvas *image.NRGBA, labelFont *truetype.Font, digit, cellMinX, cellMinY, cell int, rng *rand.Rand) {
	r := labelMinR + rng.Float64()*(labelMaxR-labelMinR)
	fontSize := float64(cell) * r

	dark := color.NRGBA{
		R: uint8(rng.Intn(100)),
		G: uint8(rng.Intn(100)),
		B: uint8(rng.Intn(100)),
		A: 255,
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(labelFont)
	ctx.SetFontSize(fontSize)
	ctx.SetClip(canvas.Bounds())
	ctx.SetDst(canvas)
	ctx.SetSrc(image.NewUniform(dark))
	ctx.SetHinting(font.HintingNone)

	jitterX, jitterY := rng.Intn(4), rng.Intn(4)
	baseX := cellMinX + cell - labelMargin
	baseY := cellMinY + cell - labelMargin

	pt := freetype.Pt(baseX+jitterX, baseY+jitterY)
	// DrawString errors only on a glyph missing from the face; the
	// embedded Go Bold font covers ASCII digits, so this can't fail.
	_, _ = ctx.DrawString(strconv.Itoa(digit), pt)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
