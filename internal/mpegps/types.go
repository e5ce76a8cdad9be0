// Package mpegps implements MPEG program stream (MPEG-PS) demuxing, the
// container format used by DVD-Video VOB files. It parses pack headers,
// the program stream map, and PES packets with PTS/DTS extraction.
package mpegps

import "time"

// Well-known stream IDs.
const (
	StreamIDProgramEnd     = 0xB9
	StreamIDPackHeader     = 0xBA
	StreamIDSystemHeader   = 0xBB
	StreamIDProgramMap     = 0xBC
	StreamIDPrivateStream1 = 0xBD
	StreamIDPaddingStream  = 0xBE
	StreamIDPrivateStream2 = 0xBF
)

// DemuxerData is the output of the demuxer for each logical unit. Exactly
// one of Pack, PSM, or PES will be non-nil.
type DemuxerData struct {
	Pack *PackHeader
	PSM  *PSMData
	PES  *PESData
}

// PackHeader carries the system clock reference and mux rate from an
// MPEG-2 pack header.
type PackHeader struct {
	SCR     ClockReference
	MuxRate int // units of 50 bytes/second
}

// PSMData contains the parsed program stream map.
type PSMData struct {
	ElementaryStreams []*PSMElementaryStream
}

// PSMElementaryStream describes a single elementary stream in a PSM.
type PSMElementaryStream struct {
	StreamID   uint8
	StreamType uint8
}

// PESData contains a parsed Packetized Elementary Stream packet.
type PESData struct {
	Data   []byte
	Header *PESHeader
}

// PESHeader contains the parsed PES packet header.
type PESHeader struct {
	OptionalHeader *PESOptionalHeader
	StreamID       uint8
}

// PESOptionalHeader carries optional PES fields including timestamps.
type PESOptionalHeader struct {
	PTS *ClockReference
	DTS *ClockReference
}

// ClockReference holds a 33-bit MPEG timestamp base value (90 kHz clock).
type ClockReference struct {
	Base int64
}

// Duration converts the 90 kHz tick count to a wall-clock duration. The
// 33-bit base times a nanosecond multiplier stays well inside int64.
func (c ClockReference) Duration() time.Duration {
	return time.Duration(c.Base) * time.Second / 90000
}
