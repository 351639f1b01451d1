// Command captchademo wires a captcha.Manager against a sample photo on
// disk, generates one challenge, writes the sprite to a file, and solves
// it — a runnable smoke test of the pipeline, not a network service.
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/geronimo-captcha/internal/clockutil"
	"github.com/rawblock/geronimo-captcha/internal/imaging"
	"github.com/rawblock/geronimo-captcha/internal/registry"
	"github.com/rawblock/geronimo-captcha/pkg/captcha"
)

func main() {
	log.Println("Starting geronimo-captcha demo (no HTTP server, single local run)...")

	photoPath := requireEnv("CAPTCHA_SAMPLE_PHOTO")
	secretHex := requireEnv("CAPTCHA_SECRET")
	outPath := getEnvOrDefault("CAPTCHA_OUT", "sprite.jpg")
	cellSize := atoiOrDefault(getEnvOrDefault("CAPTCHA_CELL_SIZE", "120"), 120)
	ttlSeconds := atoiOrDefault(getEnvOrDefault("CAPTCHA_TTL_SECONDS", "60"), 60)

	photo, err := os.ReadFile(photoPath)
	if err != nil {
		log.Fatalf("FATAL: failed to read sample photo %s: %v", photoPath, err)
	}

	// Nine attempts let the brute-force solve below try every digit.
	reg := registry.NewInMemory(uint64(ttlSeconds), 9, clockutil.RealClock{})

	genOpts := imaging.DefaultGenerationOptions()
	genOpts.CellSize = cellSize

	mgr, err := captcha.NewManager([]byte(secretHex), time.Duration(ttlSeconds)*time.Second, imaging.DefaultNoiseOptions(), reg, genOpts, [][]byte{photo})
	if err != nil {
		log.Fatalf("FATAL: failed to build captcha manager: %v", err)
	}
	defer mgr.Close()

	ctx := context.Background()

	challenge, err := mgr.Generate(ctx)
	if err != nil {
		log.Fatalf("FATAL: generate failed: %v", err)
	}
	log.Printf("Generated challenge id=%s mime=%s bytes=%d", challenge.ID, challenge.MimeType, len(challenge.Sprite))

	if err := os.WriteFile(outPath, challenge.Sprite, 0o644); err != nil {
		log.Fatalf("FATAL: failed to write sprite to %s: %v", outPath, err)
	}
	log.Printf("Wrote sprite to %s — open it and find the one upright tile", outPath)

	// Solve it ourselves by brute-forcing the 9 possible digits, the way a
	// test harness would without a human in the loop.
	var solved uint8
	for digit := uint8(1); digit <= 9; digit++ {
		ok, err := mgr.Verify(ctx, challenge.ID, digit)
		if err != nil {
			log.Fatalf("FATAL: verify failed: %v", err)
		}
		if ok {
			solved = digit
			break
		}
	}
	if solved == 0 {
		log.Fatal("FATAL: none of the 9 digits verified — this should never happen")
	}
	log.Printf("Upright tile is digit %d", solved)
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func atoiOrDefault(val string, fallback int) int {
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
