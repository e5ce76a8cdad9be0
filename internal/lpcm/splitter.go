package lpcm

import "time"

// prefixSize is the framed-packet prefix: a 2-byte big-endian first-access
// pointer followed by the 3-byte format header.
const prefixSize = 5

// Region is a contiguous run of packed sample bytes produced by splitting
// a framed packet. Timestamp is NoTimestamp for the carry-over bytes that
// complete the previous access unit; the region starting the first full
// access unit inherits the packet's upstream timestamp.
type Region struct {
	Data      []byte
	Timestamp time.Duration
}

// splitFramed parses the 5-byte prefix of a DVD LPCM packet and splits the
// remaining payload into one or two regions. The first-access pointer
// counts from payload offset 2 and includes the 3 header bytes, so a value
// of 4 means the payload starts a new access unit immediately; values 1-3
// are out-of-spec and treated the same as 0 (no leading split).
func splitFramed(pkt []byte, ts time.Duration) (header uint32, regions []Region, err error) {
	if len(pkt) < prefixSize {
		return 0, nil, ErrMalformedPacket
	}

	firstAccess := int(pkt[0])<<8 | int(pkt[1])
	header = uint32(pkt[2])<<16 | uint32(pkt[3])<<8 | uint32(pkt[4])
	payload := pkt[prefixSize:]

	if firstAccess <= 4 {
		// No leading fragment; the whole payload continues (or starts) an
		// access unit without a usable timestamp.
		return header, []Region{{Data: payload, Timestamp: NoTimestamp}}, nil
	}

	lead := firstAccess - 4
	if lead > len(payload) {
		// Pointer past the packet end; keep what is actually present.
		lead = len(payload)
	}

	if lead > 0 {
		regions = append(regions, Region{Data: payload[:lead], Timestamp: NoTimestamp})
	}
	regions = append(regions, Region{Data: payload[lead:], Timestamp: ts})

	return header, regions, nil
}
