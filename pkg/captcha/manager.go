// Package captcha is the public facade over the rotated-tile visual
// challenge: compose a sprite from a source photograph, mint an
// authenticated token bound to the upright tile's digit, and verify a
// solver's guess against it.
package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"log"
	"math/rand"
	"time"

	"github.com/rawblock/geronimo-captcha/internal/challenge"
	"github.com/rawblock/geronimo-captcha/internal/clockutil"
	"github.com/rawblock/geronimo-captcha/internal/imaging"
	"github.com/rawblock/geronimo-captcha/internal/registry"
	"github.com/rawblock/geronimo-captcha/internal/sprite"
)

// Challenge is what Generate hands back to the caller: an id to present
// back on Verify, the encoded sprite bytes, and their MIME type.
type Challenge struct {
	ID       string
	Sprite   []byte
	MimeType string
}

// Manager owns everything needed to generate and verify challenges: the
// HMAC secret, the token freshness window, noise options, an optional
// lifecycle registry, generation options and the pool of source
// photographs. The library has no internal background goroutines;
// Generate and Verify both run to completion on the calling goroutine and
// are safe to call concurrently from multiple goroutines.
type Manager struct {
	secret     secret
	ttlSeconds uint64
	noise      imaging.NoiseOptions
	registry   registry.Registry
	genOpts    imaging.GenerationOptions
	samples    [][]byte
	clock      clockutil.Clock
	logger     *log.Logger
}

// NewManager builds a Manager. registry may be nil, in which case
// challenges are not tracked for single-use/attempt-limit enforcement and
// Verify relies solely on the cryptographic check.
func NewManager(secretBytes []byte, ttl time.Duration, noise imaging.NoiseOptions, reg registry.Registry, genOpts imaging.GenerationOptions, samples [][]byte) (*Manager, error) {
	if len(secretBytes) == 0 {
		return nil, newError(InvalidInput, "secret must not be empty", nil)
	}
	if genOpts.CellSize <= 0 {
		return nil, newError(InvalidInput, "cell_size must be positive", nil)
	}
	if len(samples) == 0 {
		return nil, newError(InvalidInput, "at least one sample photograph is required", nil)
	}

	return &Manager{
		secret:     newSecret(secretBytes),
		ttlSeconds: uint64(ttl.Seconds()),
		noise:      noise,
		registry:   reg,
		genOpts:    genOpts,
		samples:    samples,
		clock:      clockutil.RealClock{},
		logger:     log.Default(),
	}, nil
}

// String redacts the Manager's contents; the embedded secret's own
// String/GoString already do this for %v/%+v, but this keeps the
// guarantee visible at the Manager level too.
func (m *Manager) String() string { return "captcha.Manager{...}" }

// Close zeroes the Manager's copy of the secret. Safe to call more than
// once; callers should defer it immediately after NewManager succeeds,
// mirroring the teacher's defer dbConn.Close() idiom.
func (m *Manager) Close() {
	m.secret.close()
}

// Generate composes a fresh sprite from a uniformly random sample
// photograph, mints a token bound to the upright tile's digit, registers
// it if a Registry is configured, and returns the encoded challenge.
func (m *Manager) Generate(ctx context.Context) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	if len(m.samples) == 0 {
		return Challenge{}, newError(InvalidInput, "no sample photographs configured", nil)
	}

	rng := m.newRNG()
	source := m.samples[rng.Intn(len(m.samples))]

	decoded, err := decodeWithLimits(source, m.genOpts.Limits)
	if err != nil {
		return Challenge{}, newError(Decode, "decode source photograph", err)
	}

	result, err := sprite.Compose(decoded, sprite.Options{CellSize: m.genOpts.CellSize, Noise: m.noise}, rng)
	if err != nil {
		return Challenge{}, newError(Internal, "compose sprite", err)
	}

	encoded, mime, err := imaging.Encode(result.Image, m.genOpts.Format)
	if err != nil {
		return Challenge{}, newError(Encode, "encode sprite", err)
	}

	token, _ := challenge.Mint(m.secret.bytes, result.CorrectDigit, m.clock)

	if m.registry != nil {
		m.registry.Register(token)
	}

	m.logger.Printf("info: captcha generated cell_size=%d sprite_format=%s", m.genOpts.CellSize, mime)

	return Challenge{ID: token, Sprite: encoded, MimeType: mime}, nil
}

// Verify checks guessDigit against the challenge named by id. The
// cryptographic outcome folds every structural and crypto failure mode
// into a single false — a wrong guess, a forged token and an expired
// token are indistinguishable. A registry rejection is the one place
// failure kinds are told apart: it is surfaced as a *Error with Kind
// Registry (Msg holding the registry.CheckResult's name) rather than
// folded into the boolean. Caller misuse is a *Error with Kind
// InvalidInput, and a canceled context returns ctx.Err() unchanged.
func (m *Manager) Verify(ctx context.Context, id string, guessDigit uint8) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if id == "" {
		return false, newError(InvalidInput, "id must not be empty", nil)
	}
	if guessDigit < 1 || guessDigit > 9 {
		return false, newError(InvalidInput, "guess_digit must be in [1,9]", nil)
	}

	if m.registry != nil {
		if res := m.registry.Check(id); res != registry.Ok {
			m.logger.Printf("warn: captcha verify rejected by registry: %s", res)
			return false, newError(Registry, res.String(), nil)
		}
	}

	ok := challenge.Verify(m.secret.bytes, id, guessDigit, m.ttlSeconds, m.clock)

	if m.registry != nil {
		m.registry.NoteAttempt(id, ok)
		if ok {
			m.registry.Verify(id)
		}
	}

	if ok {
		m.logger.Printf("info: captcha verify succeeded")
	} else {
		m.logger.Printf("warn: captcha verify failed")
	}
	return ok, nil
}

// newRNG hands out a private *rand.Rand per call so concurrent Generate
// calls never contend on a shared source, matching the sprite composer's
// re-entrancy requirement.
func (m *Manager) newRNG() *rand.Rand {
	return rand.New(rand.NewSource(rand.Int63()))
}

func decodeWithLimits(data []byte, limits imaging.DecodeLimits) (image.Image, error) {
	if limits.MaxAllocate > 0 && int64(len(data)) > limits.MaxAllocate {
		return nil, fmt.Errorf("source photograph is %d bytes, exceeds max_allocate %d", len(data), limits.MaxAllocate)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if limits.MaxWidth > 0 && cfg.Width > limits.MaxWidth {
		return nil, fmt.Errorf("source photograph width %d exceeds max_width %d", cfg.Width, limits.MaxWidth)
	}
	if limits.MaxHeight > 0 && cfg.Height > limits.MaxHeight {
		return nil, fmt.Errorf("source photograph height %d exceeds max_height %d", cfg.Height, limits.MaxHeight)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}
