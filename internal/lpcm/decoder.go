package lpcm

import (
	"fmt"
	"time"
)

// Buffer is one canonical PCM output buffer: big-endian signed samples at
// the Format's output width, with both timestamp and duration always set.
type Buffer struct {
	Data      []byte
	Timestamp time.Duration
	Duration  time.Duration
	Format    Format
}

// AnnounceFunc is called with the new output format whenever it changes,
// strictly before any buffer that depends on it is returned. Returning an
// error rejects the format (a downstream negotiation failure); the
// triggering buffer is dropped and the previous format stays in effect.
type AnnounceFunc func(Format) error

// Decoder converts DVD LPCM buffers into canonical PCM. It has two entry
// points selected by the surrounding stream type: DecodeFramed for packets
// carrying the 5-byte DVD prefix, and DecodeRaw for pre-unwrapped LPCM
// configured up front via SetFormat.
//
// A Decoder starts unconfigured; raw data before SetFormat (or before the
// first framed header) fails with ErrNotConfigured. All per-buffer errors
// leave format and clock state intact. Not safe for concurrent use.
type Decoder struct {
	format     Format
	rawHeader  uint32
	configured bool
	clock      clock
	announce   AnnounceFunc
}

// NewDecoder creates a Decoder. announce may be nil if the caller does not
// need format-change notifications.
func NewDecoder(announce AnnounceFunc) *Decoder {
	return &Decoder{announce: announce}
}

// Format returns the current format, and false if none is configured yet.
func (d *Decoder) Format() (Format, bool) {
	return d.format, d.configured
}

// Reset returns the decoder to its unconfigured state and rewinds the
// running clock, as on a stream restart.
func (d *Decoder) Reset() {
	d.format = Format{}
	d.rawHeader = 0
	d.configured = false
	d.clock.reset()
}

// SetFormat configures the decoder for the raw entry point. The packed
// width must be one of 16, 20, or 24; the output width is derived (20-bit
// widens to 24). The new format is announced immediately.
func (d *Decoder) SetFormat(f Format) error {
	switch f.Width {
	case 16, 24:
		f.OutWidth = f.Width
	case 20:
		f.OutWidth = 24
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedWidth, f.Width)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("lpcm: channel count %d out of range [1, 8]", f.Channels)
	}

	if d.announce != nil {
		if err := d.announce(f); err != nil {
			return fmt.Errorf("lpcm: format rejected downstream: %w", err)
		}
	}

	d.format = f
	d.configured = true
	return nil
}

// DecodeFramed decodes one DVD-framed packet: a 2-byte first-access
// pointer, a 3-byte format word, and packed payload. ts is the packet's
// upstream timestamp, or NoTimestamp. It returns zero, one, or two PCM
// buffers depending on how the payload splits around the first access
// unit. A header change is announced before any buffer is returned.
func (d *Decoder) DecodeFramed(pkt []byte, ts time.Duration) ([]Buffer, error) {
	header, regions, err := splitFramed(pkt, ts)
	if err != nil {
		return nil, err
	}

	if !d.configured || header != d.rawHeader {
		f := ParseHeader(header)
		if d.announce != nil {
			if err := d.announce(f); err != nil {
				return nil, fmt.Errorf("lpcm: format rejected downstream: %w", err)
			}
		}
		d.format = f
		d.rawHeader = header
		d.configured = true
	}

	out := make([]Buffer, 0, len(regions))
	for _, r := range regions {
		buf, ok, err := d.decodeRegion(r)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, buf)
		}
	}
	return out, nil
}

// DecodeRaw decodes one pre-unwrapped raw LPCM buffer using the format set
// by SetFormat. ts is the buffer's upstream timestamp, or NoTimestamp.
func (d *Decoder) DecodeRaw(data []byte, ts time.Duration) (Buffer, error) {
	buf, _, err := d.decodeRegion(Region{Data: data, Timestamp: ts})
	return buf, err
}

// decodeRegion repacks one region and stamps it. Empty regions produce no
// buffer but still feed the clock, so an explicit timestamp on an empty
// trailing region is not lost.
func (d *Decoder) decodeRegion(r Region) (Buffer, bool, error) {
	if !d.configured {
		return Buffer{}, false, ErrNotConfigured
	}

	data, frames, err := Repack(r.Data, d.format.Channels, d.format.Width)
	if err != nil {
		return Buffer{}, false, err
	}

	ts, dur := d.clock.stamp(r.Timestamp, frames, d.format.SampleRate)
	if len(data) == 0 {
		return Buffer{}, false, nil
	}

	return Buffer{
		Data:      data,
		Timestamp: ts,
		Duration:  dur,
		Format:    d.format,
	}, true, nil
}
