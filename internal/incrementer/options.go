package incrementer

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DefaultBlockSize = 1000
	DefaultDelta     = 1

	// MinBlockSize is the smallest accepted block size; anything at or below
	// it falls back to DefaultBlockSize.
	MinBlockSize = 5
)

// Options configures an Incrementer.
type Options struct {
	BlockSize     uint64
	Delta         uint64
	PaddingLength int
}

// DefaultOptions returns block size 1000, delta 1 and no padding.
func DefaultOptions() Options {
	return Options{
		BlockSize: DefaultBlockSize,
		Delta:     DefaultDelta,
	}
}

// normalize replaces invalid settings with safe defaults instead of failing.
// Each replacement is logged at warn level.
func (o Options) normalize(logger zerolog.Logger) Options {
	if o.BlockSize <= MinBlockSize {
		logger.Warn().Uint64("block_size", o.BlockSize).Uint64("default", DefaultBlockSize).
			Msg("block size too small, using default")
		o.BlockSize = DefaultBlockSize
	}
	if o.Delta == 0 {
		logger.Warn().Uint64("delta", o.Delta).Uint64("default", DefaultDelta).
			Msg("delta must be positive, using default")
		o.Delta = DefaultDelta
	}
	if o.Delta >= o.BlockSize {
		logger.Warn().Uint64("delta", o.Delta).Uint64("block_size", o.BlockSize).
			Msg("delta not smaller than block size, using 1")
		o.Delta = 1
	}
	if o.PaddingLength < 0 {
		logger.Warn().Int("padding_length", o.PaddingLength).Msg("negative padding length, using 0")
		o.PaddingLength = 0
	}
	return o
}

// Format renders id in decimal, left-padded with '0' to padding characters.
// Longer values are returned unchanged.
func Format(id uint64, padding int) string {
	s := strconv.FormatUint(id, 10)
	if len(s) >= padding {
		return s
	}
	return strings.Repeat("0", padding-len(s)) + s
}
