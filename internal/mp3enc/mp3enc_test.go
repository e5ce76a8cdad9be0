package mp3enc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aria-media/aria/internal/media"
)

func TestRoundUpBitrate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "zero passes through", in: 0, want: 0},
		{name: "low tier multiple kept", in: 32, want: 32},
		{name: "low tier rounds to 8", in: 33, want: 40},
		{name: "tier boundary 64 kept", in: 64, want: 64},
		{name: "mid tier rounds to 16", in: 65, want: 80},
		{name: "128 kept", in: 128, want: 128},
		{name: "high tier rounds to 32", in: 129, want: 160},
		{name: "192 kept", in: 192, want: 192},
		{name: "top tier rounds to 64", in: 257, want: 320},
		{name: "320 kept", in: 320, want: 320},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := roundUpBitrate(tc.in); got != tc.want {
				t.Errorf("roundUpBitrate(%d) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestParamsNormalize(t *testing.T) {
	t.Parallel()

	t.Run("quality target validates range", func(t *testing.T) {
		t.Parallel()
		p := Params{Target: TargetQuality, Quality: 10.5}
		if _, err := p.Normalize(); !errors.Is(err, ErrBadQuality) {
			t.Errorf("err = %v, want ErrBadQuality", err)
		}
		p.Quality = 9.999
		if _, err := p.Normalize(); err != nil {
			t.Errorf("quality 9.999 rejected: %v", err)
		}
	})

	t.Run("bitrate target snaps up", func(t *testing.T) {
		t.Parallel()
		p := Params{Target: TargetBitrate, Bitrate: 100}
		got, err := p.Normalize()
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		if got.Bitrate != 112 {
			t.Errorf("Bitrate = %d, want 112", got.Bitrate)
		}
	})

	t.Run("bitrate out of range", func(t *testing.T) {
		t.Parallel()
		for _, rate := range []int{7, 321} {
			p := Params{Target: TargetBitrate, Bitrate: rate}
			if _, err := p.Normalize(); !errors.Is(err, ErrBadBitrate) {
				t.Errorf("bitrate %d: err = %v, want ErrBadBitrate", rate, err)
			}
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if _, err := DefaultParams().Normalize(); err != nil {
			t.Errorf("DefaultParams rejected: %v", err)
		}
	})
}

func TestValidInput(t *testing.T) {
	t.Parallel()

	if err := ValidInput(48000, 2); err != nil {
		t.Errorf("48000/2 rejected: %v", err)
	}
	if err := ValidInput(96000, 2); !errors.Is(err, ErrBadSampleRate) {
		t.Errorf("96000 Hz: err = %v, want ErrBadSampleRate", err)
	}
	if err := ValidInput(48000, 6); !errors.Is(err, ErrBadChannels) {
		t.Errorf("6 channels: err = %v, want ErrBadChannels", err)
	}
}

// captureEncoder records the samples it was fed and emits a fixed byte per
// Encode call.
type captureEncoder struct {
	samples [][]int16
	flushed bool
}

func (e *captureEncoder) Encode(samples []int16) ([]byte, error) {
	cp := make([]int16, len(samples))
	copy(cp, samples)
	e.samples = append(e.samples, cp)
	return []byte{0xFF}, nil
}

func (e *captureEncoder) Flush() ([]byte, error) {
	e.flushed = true
	return []byte{0xEE}, nil
}

func TestSink16Bit(t *testing.T) {
	t.Parallel()

	enc := &captureEncoder{}
	var out bytes.Buffer
	sink := NewSink(enc, &out)

	frame := &media.PCMFrame{
		Data:       []byte{0x12, 0x34, 0xFF, 0xFE}, // +0x1234, -2
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}
	if err := sink.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(enc.samples) != 1 {
		t.Fatalf("Encode called %d times, want 1", len(enc.samples))
	}
	want := []int16{0x1234, -2}
	got := enc.samples[0]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("samples = %v, want %v", got, want)
	}
	if !enc.flushed {
		t.Error("Flush not called on Close")
	}
	if out.String() != "\xFF\xEE" {
		t.Errorf("output = %x, want ffee", out.Bytes())
	}
}

func TestSink24BitReduction(t *testing.T) {
	t.Parallel()

	enc := &captureEncoder{}
	sink := NewSink(enc, &bytes.Buffer{})

	// One 24-bit sample 0x123456 keeps its top two bytes.
	frame := &media.PCMFrame{
		Data:       []byte{0x12, 0x34, 0x56},
		SampleRate: 48000,
		Channels:   1,
		BitDepth:   24,
	}
	if err := sink.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if got := enc.samples[0][0]; got != 0x1234 {
		t.Errorf("sample = %#x, want 0x1234", got)
	}
}

func TestSinkRejectsFormatChange(t *testing.T) {
	t.Parallel()

	sink := NewSink(&captureEncoder{}, &bytes.Buffer{})
	first := &media.PCMFrame{Data: []byte{0, 0}, SampleRate: 48000, Channels: 1, BitDepth: 16}
	if err := sink.WriteFrame(first); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	changed := &media.PCMFrame{Data: []byte{0, 0}, SampleRate: 44100, Channels: 1, BitDepth: 16}
	if err := sink.WriteFrame(changed); err == nil {
		t.Error("expected error on mid-stream format change")
	}
}

func TestSinkRejectsUnsupportedRate(t *testing.T) {
	t.Parallel()

	sink := NewSink(&captureEncoder{}, &bytes.Buffer{})
	frame := &media.PCMFrame{Data: []byte{0, 0}, SampleRate: 96000, Channels: 2, BitDepth: 16}
	if err := sink.WriteFrame(frame); !errors.Is(err, ErrBadSampleRate) {
		t.Errorf("err = %v, want ErrBadSampleRate", err)
	}
}
