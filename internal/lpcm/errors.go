package lpcm

import "errors"

// Sentinel errors for per-buffer decode failures. All of them are local to
// the buffer that triggered them: decoder format and clock state survive,
// and the next buffer is processed normally.
var (
	// ErrMalformedPacket is returned for a framed packet shorter than the
	// 5-byte first-access + header prefix.
	ErrMalformedPacket = errors.New("lpcm: framed packet shorter than 5-byte prefix")

	// ErrNotConfigured is returned when raw LPCM data arrives before any
	// format has been set.
	ErrNotConfigured = errors.New("lpcm: buffer received before format configuration")

	// ErrUnsupportedWidth is returned for a configured sample width outside
	// {16, 20, 24}.
	ErrUnsupportedWidth = errors.New("lpcm: unsupported sample width")
)
