package pcmwire

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/aria-media/aria/internal/media"
)

// Data stream record types.
const (
	RecordFormat uint64 = 0x00
	RecordFrame  uint64 = 0x01
)

// Format flag bits.
const (
	flagEmphasis = 1 << 0
	flagMute     = 1 << 1
)

// maxFramePayload bounds a single frame record. The largest DVD LPCM
// payload is about 2KB per packet; a megabyte leaves room without letting
// a corrupt length allocate unbounded memory.
const maxFramePayload = 1 << 20

// Format describes a track's PCM layout on the wire.
type Format struct {
	SampleRate   uint64
	Channels     uint64
	BitDepth     uint64
	Emphasis     bool
	Mute         bool
	DynamicRange uint8
}

// FormatFromInfo converts a pipeline announcement to its wire form.
func FormatFromInfo(info media.AudioInfo) Format {
	return Format{
		SampleRate:   uint64(info.SampleRate),
		Channels:     uint64(info.Channels),
		BitDepth:     uint64(info.BitDepth),
		Emphasis:     info.Emphasis,
		Mute:         info.Mute,
		DynamicRange: info.DynamicRange,
	}
}

// Info converts a wire format back to a pipeline announcement.
func (f Format) Info(trackIndex int) media.AudioInfo {
	return media.AudioInfo{
		TrackIndex:   trackIndex,
		SampleRate:   int(f.SampleRate),
		Channels:     int(f.Channels),
		BitDepth:     int(f.BitDepth),
		Emphasis:     f.Emphasis,
		Mute:         f.Mute,
		DynamicRange: f.DynamicRange,
	}
}

func appendFormat(buf []byte, f Format) []byte {
	buf = quicvarint.Append(buf, f.SampleRate)
	buf = quicvarint.Append(buf, f.Channels)
	buf = quicvarint.Append(buf, f.BitDepth)
	var flags byte
	if f.Emphasis {
		flags |= flagEmphasis
	}
	if f.Mute {
		flags |= flagMute
	}
	buf = append(buf, flags, f.DynamicRange)
	return buf
}

func parseFormat(r *bufReader) (Format, error) {
	var f Format
	var err error
	if f.SampleRate, err = r.readVarint(); err != nil {
		return f, fmt.Errorf("sample rate: %w", err)
	}
	if f.Channels, err = r.readVarint(); err != nil {
		return f, fmt.Errorf("channels: %w", err)
	}
	if f.BitDepth, err = r.readVarint(); err != nil {
		return f, fmt.Errorf("bit depth: %w", err)
	}
	flags, err := r.readByte()
	if err != nil {
		return f, fmt.Errorf("flags: %w", err)
	}
	f.Emphasis = flags&flagEmphasis != 0
	f.Mute = flags&flagMute != 0
	if f.DynamicRange, err = r.readByte(); err != nil {
		return f, fmt.Errorf("dynamic range: %w", err)
	}
	return f, nil
}

// Record is one unit read from a track data stream. Type selects which of
// the remaining fields are meaningful.
type Record struct {
	Type     uint64
	Format   Format        // RecordFormat
	PTS      time.Duration // RecordFrame
	Duration time.Duration // RecordFrame
	Data     []byte        // RecordFrame
}

// TrackWriter serializes format records and PCM frames onto a track data
// stream. Each record is written with a single Write call.
type TrackWriter struct {
	w io.Writer
}

// NewTrackWriter creates a TrackWriter over a data stream.
func NewTrackWriter(w io.Writer) *TrackWriter {
	return &TrackWriter{w: w}
}

// WriteStreamHeader writes the stream header naming the track this data
// stream carries. Must be called before any record.
func (tw *TrackWriter) WriteStreamHeader(trackIndex uint64) error {
	_, err := tw.w.Write(quicvarint.Append(nil, trackIndex))
	return err
}

// WriteFormat writes a format record. A format record always precedes the
// first frame it applies to.
func (tw *TrackWriter) WriteFormat(f Format) error {
	buf := quicvarint.Append(nil, RecordFormat)
	buf = appendFormat(buf, f)
	_, err := tw.w.Write(buf)
	return err
}

// WriteFrame writes one PCM frame record.
func (tw *TrackWriter) WriteFrame(pts, duration time.Duration, data []byte) error {
	buf := quicvarint.Append(nil, RecordFrame)
	buf = quicvarint.Append(buf, uint64(pts))
	buf = quicvarint.Append(buf, uint64(duration))
	buf = appendVarIntBytes(buf, data)
	_, err := tw.w.Write(buf)
	return err
}

// TrackReader parses a track data stream produced by TrackWriter.
type TrackReader struct {
	br *bufio.Reader
}

// NewTrackReader creates a TrackReader over a data stream.
func NewTrackReader(r io.Reader) *TrackReader {
	return &TrackReader{br: bufio.NewReader(r)}
}

// ReadStreamHeader reads the track index header. Must be called once before
// Next.
func (tr *TrackReader) ReadStreamHeader() (uint64, error) {
	idx, err := quicvarint.Read(tr.br)
	if err != nil {
		return 0, fmt.Errorf("read stream header: %w", err)
	}
	return idx, nil
}

// Next reads the next record from the stream. Returns io.EOF at a clean
// record boundary when the stream ends.
func (tr *TrackReader) Next() (Record, error) {
	var rec Record

	typ, err := quicvarint.Read(tr.br)
	if err != nil {
		if err == io.EOF {
			return rec, io.EOF
		}
		return rec, &ParseError{Field: "record_type", Err: err}
	}
	rec.Type = typ

	switch typ {
	case RecordFormat:
		rec.Format, err = tr.readFormat()
		if err != nil {
			return rec, &ParseError{Field: "format", Err: err}
		}
	case RecordFrame:
		pts, err := quicvarint.Read(tr.br)
		if err != nil {
			return rec, &ParseError{Field: "pts", Err: err}
		}
		dur, err := quicvarint.Read(tr.br)
		if err != nil {
			return rec, &ParseError{Field: "duration", Err: err}
		}
		size, err := quicvarint.Read(tr.br)
		if err != nil {
			return rec, &ParseError{Field: "payload_length", Err: err}
		}
		if size > maxFramePayload {
			return rec, &ParseError{Field: "payload_length",
				Err: fmt.Errorf("frame payload %d exceeds limit", size)}
		}
		rec.PTS = time.Duration(pts)
		rec.Duration = time.Duration(dur)
		rec.Data = make([]byte, size)
		if _, err := io.ReadFull(tr.br, rec.Data); err != nil {
			return rec, &ParseError{Field: "payload", Err: err}
		}
	default:
		return rec, &ParseError{Field: "record_type",
			Err: fmt.Errorf("unknown record type %#x", typ)}
	}

	return rec, nil
}

func (tr *TrackReader) readFormat() (Format, error) {
	var f Format
	var err error
	if f.SampleRate, err = quicvarint.Read(tr.br); err != nil {
		return f, err
	}
	if f.Channels, err = quicvarint.Read(tr.br); err != nil {
		return f, err
	}
	if f.BitDepth, err = quicvarint.Read(tr.br); err != nil {
		return f, err
	}
	flags, err := tr.br.ReadByte()
	if err != nil {
		return f, err
	}
	f.Emphasis = flags&flagEmphasis != 0
	f.Mute = flags&flagMute != 0
	dr, err := tr.br.ReadByte()
	if err != nil {
		return f, err
	}
	f.DynamicRange = dr
	return f, nil
}
