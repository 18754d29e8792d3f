package cropper

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/fpang/autocrop/internal/bounds"
)

// Default crop tunables.
const (
	DefaultTolerance = 20
	DefaultMaxPixels = int64(100_000_000)
)

// Config holds every crop tunable in one place.
type Config struct {
	// Background is the border color the primary trim removes.
	Background color.NRGBA

	// Tolerance is the maximum per-channel difference (0-255) from
	// Background for a pixel to still count as border during trim.
	Tolerance int

	// FallbackThreshold is the near-white cutoff used by the bounds scan when
	// trim makes no change. It is stricter than the trim tolerance.
	FallbackThreshold uint8

	// MaxPixels rejects images whose decoded pixel count exceeds it before
	// the raw decode happens. 0 disables the guard.
	MaxPixels int64
}

// DefaultConfig returns the white-background configuration used by every
// entry point unless overridden.
func DefaultConfig() Config {
	return Config{
		Background:        color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		Tolerance:         DefaultTolerance,
		FallbackThreshold: bounds.DefaultThreshold,
		MaxPixels:         DefaultMaxPixels,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.Tolerance < 0 || c.Tolerance > 255 {
		return fmt.Errorf("tolerance must be within 0-255, got %d", c.Tolerance)
	}
	if c.FallbackThreshold == 0 {
		return fmt.Errorf("fallback threshold must be positive")
	}
	if c.MaxPixels < 0 {
		return fmt.Errorf("max pixels must not be negative, got %d", c.MaxPixels)
	}
	return nil
}

// ParseHexColor parses "#rgb", "#rrggbb" or "#rrggbbaa" (leading # optional).
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}
