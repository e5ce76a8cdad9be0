package mpegps

import "fmt"

// hasOptionalHeader reports whether a stream ID carries the MPEG-2 optional
// PES header. Padding, private_stream_2, ECM/EMM, DSMCC, H.222.1 type E and
// the program stream directory do not.
func hasOptionalHeader(streamID uint8) bool {
	return streamID != 0xBE && streamID != 0xBF &&
		streamID != 0xF0 && streamID != 0xF1 &&
		streamID != 0xF2 && streamID != 0xF8 && streamID != 0xFF
}

// parsePES parses a PES packet body: everything after the 16-bit
// PES_packet_length field, which the demuxer has already consumed.
func parsePES(streamID uint8, body []byte) (*PESData, error) {
	pes := &PESData{
		Header: &PESHeader{StreamID: streamID},
	}

	if !hasOptionalHeader(streamID) {
		pes.Data = body
		return pes, nil
	}

	if len(body) < 3 {
		return nil, fmt.Errorf("mpegps: PES optional header too short (%d bytes)", len(body))
	}

	// body[0]: marker(2) + scrambling(2) + priority(1) + alignment(1) + copyright(1) + original(1)
	// body[1]: PTS_DTS_indicator(2) + ESCR(1) + ES_rate(1) + DSM_trick(1) + additional_copy(1) + CRC(1) + extension(1)
	// body[2]: PES_header_data_length
	if body[0]>>6 != 0x02 {
		return nil, fmt.Errorf("mpegps: invalid PES marker bits %02b", body[0]>>6)
	}
	ptsDTSIndicator := (body[1] >> 6) & 0x03
	headerDataLength := int(body[2])

	dataStart := 3 + headerDataLength
	if dataStart > len(body) {
		dataStart = len(body)
	}

	pes.Header.OptionalHeader = &PESOptionalHeader{}

	switch ptsDTSIndicator {
	case 2: // PTS only
		if len(body) >= 8 {
			pes.Header.OptionalHeader.PTS = parsePTSOrDTS(body[3:8])
		}
	case 3: // PTS + DTS
		if len(body) >= 13 {
			pes.Header.OptionalHeader.PTS = parsePTSOrDTS(body[3:8])
			pes.Header.OptionalHeader.DTS = parsePTSOrDTS(body[8:13])
		}
	}

	pes.Data = body[dataStart:]
	return pes, nil
}

// parsePTSOrDTS extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parsePTSOrDTS(bs []byte) *ClockReference {
	if len(bs) < 5 {
		return nil
	}
	base := int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
	return &ClockReference{Base: base}
}
