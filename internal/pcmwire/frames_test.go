package pcmwire

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aria-media/aria/internal/media"
)

func TestTrackStreamRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw := NewTrackWriter(&buf)

	format := Format{SampleRate: 48000, Channels: 2, BitDepth: 16, DynamicRange: 0x0F}
	if err := tw.WriteStreamHeader(1); err != nil {
		t.Fatal(err)
	}
	if err := tw.WriteFormat(format); err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte{0xAB}, 1920)
	if err := tw.WriteFrame(time.Second, 10*time.Millisecond, payload); err != nil {
		t.Fatal(err)
	}

	tr := NewTrackReader(&buf)
	idx, err := tr.ReadStreamHeader()
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Errorf("track index = %d, want 1", idx)
	}

	rec, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != RecordFormat || rec.Format != format {
		t.Errorf("record 1 = %+v, want format record", rec)
	}

	rec, err = tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != RecordFrame {
		t.Fatalf("record 2 type = %#x, want frame", rec.Type)
	}
	if rec.PTS != time.Second || rec.Duration != 10*time.Millisecond {
		t.Errorf("timing = %v/%v", rec.PTS, rec.Duration)
	}
	if !bytes.Equal(rec.Data, payload) {
		t.Errorf("payload mismatch: %d bytes", len(rec.Data))
	}

	if _, err := tr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF at stream end", err)
	}
}

func TestTrackReaderRejects(t *testing.T) {
	t.Parallel()

	// Unknown record type.
	tr := NewTrackReader(bytes.NewReader([]byte{0x3F}))
	if _, err := tr.Next(); err == nil {
		t.Error("unknown record type accepted")
	}

	// Frame payload length beyond the cap.
	var buf bytes.Buffer
	buf.WriteByte(byte(RecordFrame))
	buf.Write([]byte{0x00, 0x00})                          // pts, duration
	buf.Write([]byte{0xC0, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00}) // 8-byte varint length
	tr = NewTrackReader(&buf)
	var pe *ParseError
	if _, err := tr.Next(); !errors.As(err, &pe) {
		t.Errorf("oversized payload: err = %v, want *ParseError", err)
	}

	// Truncated payload.
	var short bytes.Buffer
	stw := NewTrackWriter(&short)
	stw.WriteFrame(0, 0, bytes.Repeat([]byte{0x01}, 100))
	tr = NewTrackReader(bytes.NewReader(short.Bytes()[:20]))
	if _, err := tr.Next(); err == nil {
		t.Error("truncated payload accepted")
	}
}

func TestFormatInfoConversion(t *testing.T) {
	t.Parallel()

	info := media.AudioInfo{
		TrackIndex:   2,
		SampleRate:   96000,
		Channels:     6,
		BitDepth:     24,
		Emphasis:     true,
		Mute:         true,
		DynamicRange: 0x42,
	}
	got := FormatFromInfo(info).Info(2)
	if got != info {
		t.Errorf("round trip = %+v, want %+v", got, info)
	}
}

func FuzzTrackReader(f *testing.F) {
	var seed bytes.Buffer
	tw := NewTrackWriter(&seed)
	tw.WriteStreamHeader(0)
	tw.WriteFormat(Format{SampleRate: 48000, Channels: 2, BitDepth: 16})
	tw.WriteFrame(0, 10*time.Millisecond, []byte{0x01, 0x02, 0x03, 0x04})
	f.Add(seed.Bytes())
	f.Add([]byte{0x01, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		tr := NewTrackReader(bytes.NewReader(data))
		if _, err := tr.ReadStreamHeader(); err != nil {
			return
		}
		for i := 0; i < 64; i++ {
			if _, err := tr.Next(); err != nil {
				return
			}
		}
	})
}
