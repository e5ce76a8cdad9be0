// Package mp3enc defines the MP3 companion-encoder boundary: parameter
// validation and the PCM adaptation an encoder engine consumes. The engine
// itself is supplied by the caller; this package normalizes everything up
// to its input.
package mp3enc

import (
	"errors"
	"fmt"
)

// Target selects whether the encoder optimizes for quality (VBR) or
// bitrate (ABR, or CBR when requested).
type Target int

// Encoding targets.
const (
	TargetQuality Target = iota
	TargetBitrate
)

// EngineQuality trades encoding speed against output quality without
// affecting the bitrate.
type EngineQuality int

// Engine quality presets.
const (
	EngineFast EngineQuality = iota
	EngineStandard
	EngineHigh
)

// Parameter bounds.
const (
	MinBitrate = 8
	MaxBitrate = 320
	MaxQuality = 9.999
)

// Default parameter values.
const (
	DefaultBitrate = 128
	DefaultQuality = 4.0
)

// sampleRates an MP3 bitstream can carry.
var sampleRates = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}

var (
	ErrBadQuality    = errors.New("mp3enc: quality out of range")
	ErrBadBitrate    = errors.New("mp3enc: bitrate out of range")
	ErrBadSampleRate = errors.New("mp3enc: unsupported sample rate")
	ErrBadChannels   = errors.New("mp3enc: unsupported channel count")
)

// Params configures an encoder engine.
type Params struct {
	Target        Target
	Bitrate       int     // kbit/s, used when Target is TargetBitrate
	CBR           bool    // enforce constant bitrate (Target bitrate only)
	Quality       float64 // 0 (best) to 9.999 (worst), Target quality only
	EngineQuality EngineQuality
	Mono          bool
}

// DefaultParams returns the encoder defaults: VBR quality 4, standard
// engine quality.
func DefaultParams() Params {
	return Params{
		Target:        TargetQuality,
		Bitrate:       DefaultBitrate,
		Quality:       DefaultQuality,
		EngineQuality: EngineStandard,
	}
}

// roundUpBitrate snaps a requested bitrate up to the nearest value the MP3
// frame format allows. Rates below each tier ceiling must be multiples of
// the tier granularity: 8 up to 64 kbit/s, 16 up to 128, 32 up to 256,
// and 64 up to 320.
func roundUpBitrate(rate int) int {
	var multiplier int
	switch {
	case rate <= 0:
		return rate
	case rate <= 64:
		multiplier = 8
	case rate <= 128:
		multiplier = 16
	case rate <= 256:
		multiplier = 32
	default:
		multiplier = 64
	}
	if rate%multiplier != 0 {
		rate = (rate/multiplier + 1) * multiplier
	}
	return rate
}

// Normalize validates p and snaps the bitrate to an allowed value,
// returning the effective parameters an engine should be configured with.
func (p Params) Normalize() (Params, error) {
	switch p.Target {
	case TargetQuality:
		if p.Quality < 0 || p.Quality > MaxQuality {
			return p, fmt.Errorf("%w: %g not in [0, %g]", ErrBadQuality, p.Quality, MaxQuality)
		}
	case TargetBitrate:
		if p.Bitrate < MinBitrate || p.Bitrate > MaxBitrate {
			return p, fmt.Errorf("%w: %d not in [%d, %d]", ErrBadBitrate, p.Bitrate, MinBitrate, MaxBitrate)
		}
		p.Bitrate = roundUpBitrate(p.Bitrate)
	default:
		return p, fmt.Errorf("mp3enc: unknown target %d", p.Target)
	}
	return p, nil
}

// ValidInput reports whether an encoder engine can accept the given input
// format directly.
func ValidInput(sampleRate, channels int) error {
	ok := false
	for _, r := range sampleRates {
		if r == sampleRate {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %d Hz", ErrBadSampleRate, sampleRate)
	}
	if channels < 1 || channels > 2 {
		return fmt.Errorf("%w: %d", ErrBadChannels, channels)
	}
	return nil
}

// Encoder is the engine boundary. Encode consumes interleaved native-order
// int16 samples and returns any MP3 bytes produced; Flush drains the
// engine's internal buffer at end of stream.
type Encoder interface {
	Encode(samples []int16) ([]byte, error)
	Flush() ([]byte, error)
}
