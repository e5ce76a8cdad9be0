package mpegps

import "fmt"

// packHeaderSize is the fixed portion of an MPEG-2 pack header after the
// start code, before any stuffing bytes.
const packHeaderSize = 10

// parsePackHeader parses the 10 fixed bytes following the 0x000001BA start
// code and returns the header plus the number of stuffing bytes to skip.
func parsePackHeader(b []byte) (*PackHeader, int, error) {
	if len(b) < packHeaderSize {
		return nil, 0, fmt.Errorf("mpegps: pack header too short (%d bytes)", len(b))
	}
	// MPEG-2 pack headers start with '01' marker bits. An MPEG-1 pack
	// ('0010') would land here too, but DVD-Video is always MPEG-2.
	if b[0]>>6 != 0x01 {
		return nil, 0, fmt.Errorf("mpegps: not an MPEG-2 pack header (leading bits %02b)", b[0]>>6)
	}

	// SCR base: 33 bits split 3/15/15 across six bytes with marker bits
	// between the runs.
	base := int64(b[0]>>3&0x07)<<30 |
		int64(b[0]&0x03)<<28 |
		int64(b[1])<<20 |
		int64(b[2]>>3&0x1F)<<15 |
		int64(b[2]&0x03)<<13 |
		int64(b[3])<<5 |
		int64(b[4]>>3&0x1F)

	muxRate := int(b[6])<<14 | int(b[7])<<6 | int(b[8])>>2
	stuffing := int(b[9] & 0x07)

	return &PackHeader{
		SCR:     ClockReference{Base: base},
		MuxRate: muxRate,
	}, stuffing, nil
}
