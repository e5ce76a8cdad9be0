package mp3enc

import (
	"fmt"
	"io"

	"github.com/aria-media/aria/internal/media"
)

// Sink adapts decoded PCM frames to an Encoder and writes the produced
// bitstream to w. Frames carry big-endian samples at 16 or 24 bit; the
// engine takes interleaved int16, so 24-bit input loses its low byte here.
type Sink struct {
	enc Encoder
	w   io.Writer

	sampleRate int
	channels   int
	configured bool
}

// NewSink creates a Sink writing the encoded bitstream to w.
func NewSink(enc Encoder, w io.Writer) *Sink {
	return &Sink{enc: enc, w: w}
}

// WriteFrame converts one PCM frame and feeds it to the engine. The first
// frame fixes the input format; later frames must match it.
func (s *Sink) WriteFrame(frame *media.PCMFrame) error {
	if !s.configured {
		if err := ValidInput(frame.SampleRate, frame.Channels); err != nil {
			return err
		}
		s.sampleRate = frame.SampleRate
		s.channels = frame.Channels
		s.configured = true
	} else if frame.SampleRate != s.sampleRate || frame.Channels != s.channels {
		return fmt.Errorf("mp3enc: format changed mid-stream: %d Hz %dch -> %d Hz %dch",
			s.sampleRate, s.channels, frame.SampleRate, frame.Channels)
	}

	samples, err := toInt16(frame.Data, frame.BitDepth)
	if err != nil {
		return err
	}
	out, err := s.enc.Encode(samples)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if _, err := s.w.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the engine and writes the final bitstream bytes. It does
// not close the underlying writer.
func (s *Sink) Close() error {
	out, err := s.enc.Flush()
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if _, err := s.w.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// toInt16 converts big-endian PCM bytes to interleaved int16 samples.
// 24-bit samples keep their top two bytes.
func toInt16(data []byte, bitDepth int) ([]int16, error) {
	switch bitDepth {
	case 16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("mp3enc: 16-bit payload not sample-aligned: %d bytes", len(data))
		}
		samples := make([]int16, len(data)/2)
		for i := range samples {
			samples[i] = int16(uint16(data[2*i])<<8 | uint16(data[2*i+1]))
		}
		return samples, nil
	case 24:
		if len(data)%3 != 0 {
			return nil, fmt.Errorf("mp3enc: 24-bit payload not sample-aligned: %d bytes", len(data))
		}
		samples := make([]int16, len(data)/3)
		for i := range samples {
			samples[i] = int16(uint16(data[3*i])<<8 | uint16(data[3*i+1]))
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("mp3enc: unsupported bit depth %d", bitDepth)
	}
}
