// Package media defines the core frame types that flow through the Aria
// processing pipeline, from demuxing through distribution.
package media

import "time"

// Channel buffer sizes used by both the demuxer (producer) and viewer sessions
// (consumer) to decouple frame production from consumption. DVD LPCM packets
// carry roughly 10ms of audio each, so 256 covers about 2.5 seconds.
const (
	PCMBufferSize = 256
)

// PCMFrame is a run of linear PCM samples belonging to a specific audio
// track. Samples are big-endian, channel-interleaved, at the bit depth given
// by BitDepth (16 or 24). Multi-track streams produce separate PCMFrames with
// distinct TrackIndex values.
type PCMFrame struct {
	PTS        time.Duration
	Duration   time.Duration
	Data       []byte
	SampleRate int
	Channels   int
	BitDepth   int
	TrackIndex int
}

// Frames reports the number of whole sample frames carried by the payload,
// or 0 when the frame is not yet configured.
func (f *PCMFrame) Frames() int {
	stride := f.Channels * f.BitDepth / 8
	if stride == 0 {
		return 0
	}
	return len(f.Data) / stride
}

// AudioInfo describes a track's format, announced by the pipeline before the
// track's first frame so downstream sinks can configure themselves.
type AudioInfo struct {
	TrackIndex   int
	SampleRate   int
	Channels     int
	BitDepth     int
	Emphasis     bool
	Mute         bool
	DynamicRange uint8
}
