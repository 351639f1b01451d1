// Package imaging implements the pixel-level primitives the sprite
// composer builds on: center rotation, resize, horizontal flip, the
// OCR-resisting noise watermark, and JPEG/WebP encoding.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// DecodeLimits bounds the resources a decode is allowed to consume, the Go
// analogue of the original's image::Limits.
type DecodeLimits struct {
	MaxWidth    int
	MaxHeight   int
	MaxAllocate int64
}

// DefaultDecodeLimits matches spec.md §4.2 step 1's defaults.
func DefaultDecodeLimits() DecodeLimits {
	return DecodeLimits{
		MaxWidth:    4096,
		MaxHeight:   4096,
		MaxAllocate: 128 * 1024 * 1024,
	}
}

// RotateAboutCenter rotates img by degrees about its center using
// nearest-neighbor sampling, filling exposed corners with opaque white. A
// zero-degree rotation returns an exact copy rather than special-casing
// identity downstream.
//
// disintegration/imaging's Rotate has no nearest-neighbor mode (it always
// interpolates), so this primitive is hand-rolled directly over
// image.NRGBA instead of reaching for a library that can't express the
// spec's exact sampling requirement — the one primitive in this package
// not grounded on a third-party dependency, justified in DESIGN.md.
func RotateAboutCenter(img image.Image, degrees float64) *image.NRGBA {
	src := imaging.Clone(img)
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	if degrees == 0 {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out.Set(x, y, src.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return out
	}

	cx, cy := float64(width)/2, float64(height)/2
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Inverse-map the destination pixel back into source space by
			// rotating by -degrees about the center.
			dx, dy := float64(x)-cx, float64(y)-cy
			srcX := dx*cos + dy*sin + cx
			srcY := -dx*sin + dy*cos + cy

			sx := int(math.Round(srcX))
			sy := int(math.Round(srcY))

			if sx < 0 || sx >= width || sy < 0 || sy >= height {
				out.Set(x, y, white)
				continue
			}
			out.Set(x, y, src.NRGBAAt(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return out
}

// ResizeFilter selects the resampling kernel used by Resize.
type ResizeFilter int

const (
	// NearestNeighbor is used for the cheap initial decode-time resize.
	NearestNeighbor ResizeFilter = iota
	// Lanczos is used for the higher-quality tile shrink.
	Lanczos
)

// Resize scales img to width x height using the requested filter.
func Resize(img image.Image, width, height int, filter ResizeFilter) *image.NRGBA {
	var f imaging.ResampleFilter
	switch filter {
	case Lanczos:
		f = imaging.Lanczos
	default:
		f = imaging.NearestNeighbor
	}
	return imaging.Resize(img, width, height, f)
}

// FlipHorizontal mirrors img left-to-right.
func FlipHorizontal(img image.Image) *image.NRGBA {
	return imaging.FlipH(img)
}

// NoisePattern selects how WatermarkWithNoise stamps each mark.
type NoisePattern int

const (
	// Dots writes a single pixel per iteration.
	Dots NoisePattern = iota
	// Lines writes a horizontal run of Size pixels.
	Lines
	// Grid writes a Size x Size block.
	Grid
)

// NoiseOptions configures WatermarkWithNoise. The zero value is not
// meaningful on its own; use DefaultNoiseOptions.
type NoiseOptions struct {
	Count     int
	Size      int
	Alpha     uint8
	ColorLo   uint8
	ColorHi   uint8
	Pattern   NoisePattern
	Red       bool
	Green     bool
	Blue      bool
	BlurSigma float64
}

// DefaultNoiseOptions matches spec.md §4.3's defaults.
func DefaultNoiseOptions() NoiseOptions {
	return NoiseOptions{
		Count:     2700,
		Size:      2,
		Alpha:     100,
		ColorLo:   0,
		ColorHi:   255,
		Pattern:   Grid,
		Red:       true,
		Green:     true,
		Blue:      true,
		BlurSigma: 0.7,
	}
}

// WatermarkWithNoise stamps opts.Count random marks onto img in place
// (via a fresh NRGBA copy returned to the caller — Go images passed by
// value don't alias the way a Rust &mut DynamicImage does, so "in place"
// here means "the composer discards the pre-watermark image and keeps
// this one") and, if opts.BlurSigma > 0, applies a Gaussian blur pass
// afterward.
func WatermarkWithNoise(img image.Image, opts NoiseOptions, rng *rand.Rand) *image.NRGBA {
	out := imaging.Clone(img)
	bounds := out.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	for i := 0; i < opts.Count; i++ {
		x := bounds.Min.X + rng.Intn(width)
		y := bounds.Min.Y + rng.Intn(height)
		c := randomColor(opts, rng)

		switch opts.Pattern {
		case Dots:
			out.Set(x, y, c)
		case Lines:
			for dx := 0; dx < opts.Size; dx++ {
				if x+dx < bounds.Min.X+width {
					out.Set(x+dx, y, c)
				}
			}
		case Grid:
			for dx := 0; dx < opts.Size; dx++ {
				for dy := 0; dy < opts.Size; dy++ {
					if x+dx < bounds.Min.X+width && y+dy < bounds.Min.Y+height {
						out.Set(x+dx, y+dy, c)
					}
				}
			}
		}
	}

	if opts.BlurSigma > 0 {
		return imaging.Blur(out, opts.BlurSigma)
	}
	return out
}

func randomColor(opts NoiseOptions, rng *rand.Rand) color.NRGBA {
	span := int(opts.ColorHi) - int(opts.ColorLo) + 1
	channel := func(enabled bool) uint8 {
		if !enabled {
			return 0
		}
		return opts.ColorLo + uint8(rng.Intn(span))
	}
	return color.NRGBA{
		R: channel(opts.Red),
		G: channel(opts.Green),
		B: channel(opts.Blue),
		A: opts.Alpha,
	}
}

// SpriteFormat selects the sprite's wire encoding: JPEG at a quality, or
// WebP at a quality with an optional lossless mode. The two constructors
// are the sum type's cases; the WebP field tags which one a value holds.
type SpriteFormat struct {
	WebP     bool
	Quality  int  // JPEG quality or WebP quality, [1..100]
	Lossless bool // WebP only
}

// JPEG builds a lossy JPEG SpriteFormat at the given quality.
func JPEG(quality int) SpriteFormat { return SpriteFormat{Quality: quality} }

// WebP builds a WebP SpriteFormat, lossy at the given quality unless
// lossless is requested.
func WebP(quality int, lossless bool) SpriteFormat {
	return SpriteFormat{WebP: true, Quality: quality, Lossless: lossless}
}

// GenerationOptions configures one sprite composition end to end: the
// composer's cell size, the wire format Encode renders to, and the decode
// resource limits applied to the source photograph.
type GenerationOptions struct {
	CellSize int
	Format   SpriteFormat
	Limits   DecodeLimits
}

// DefaultGenerationOptions is a reasonable starting point: a 120px cell,
// JPEG at quality 80, and the default decode limits.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		CellSize: 120,
		Format:   JPEG(80),
		Limits:   DefaultDecodeLimits(),
	}
}

// Encode renders img in the requested format, returning the bytes and the
// matching MIME type.
func Encode(img image.Image, format SpriteFormat) ([]byte, string, error) {
	if format.WebP {
		var buf bytes.Buffer
		opts := &webp.Options{Lossless: format.Lossless, Quality: float32(format.Quality)}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/webp", nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: format.Quality}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}
