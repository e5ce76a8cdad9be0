package mpegps

import "fmt"

// parsePSM parses a program stream map section (the body after the
// 0x000001BC start code and the 16-bit length field).
func parsePSM(b []byte) (*PSMData, error) {
	// current_next/version byte, reserved byte, program_stream_info_length.
	if len(b) < 4 {
		return nil, fmt.Errorf("mpegps: PSM too short (%d bytes)", len(b))
	}
	infoLen := int(b[2])<<8 | int(b[3])
	offset := 4 + infoLen
	if offset+2 > len(b) {
		return nil, fmt.Errorf("mpegps: PSM descriptor length %d overruns section", infoLen)
	}

	mapLen := int(b[offset])<<8 | int(b[offset+1])
	offset += 2
	end := offset + mapLen
	if end > len(b) {
		return nil, fmt.Errorf("mpegps: PSM stream map length %d overruns section", mapLen)
	}

	psm := &PSMData{}
	for offset+4 <= end {
		esInfoLen := int(b[offset+2])<<8 | int(b[offset+3])
		psm.ElementaryStreams = append(psm.ElementaryStreams, &PSMElementaryStream{
			StreamType: b[offset],
			StreamID:   b[offset+1],
		})
		offset += 4 + esInfoLen
	}
	// Trailing CRC32 is ignored.
	return psm, nil
}
