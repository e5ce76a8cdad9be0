package lpcm

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// makeFramed builds a framed packet with the given first-access pointer,
// header word, and payload length. Payload bytes count up from zero so
// split boundaries are visible in the test output.
func makeFramed(firstAccess int, header uint32, payloadLen int) []byte {
	pkt := make([]byte, prefixSize+payloadLen)
	pkt[0] = byte(firstAccess >> 8)
	pkt[1] = byte(firstAccess)
	pkt[2] = byte(header >> 16)
	pkt[3] = byte(header >> 8)
	pkt[4] = byte(header)
	for i := 0; i < payloadLen; i++ {
		pkt[prefixSize+i] = byte(i)
	}
	return pkt
}

func TestSplitFramed_SingleRegion(t *testing.T) {
	t.Parallel()

	// first_access values 0..4 all yield one unstamped region covering the
	// whole payload; 1..3 are out-of-spec and treated like 0.
	for fa := 0; fa <= 4; fa++ {
		pkt := makeFramed(fa, 0x009100, 20)
		header, regions, err := splitFramed(pkt, 90*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if header != 0x009100 {
			t.Errorf("first_access=%d: header = 0x%06X, want 0x009100", fa, header)
		}
		if len(regions) != 1 {
			t.Fatalf("first_access=%d: %d regions, want 1", fa, len(regions))
		}
		if len(regions[0].Data) != 20 {
			t.Errorf("first_access=%d: region length %d, want 20", fa, len(regions[0].Data))
		}
		if regions[0].Timestamp != NoTimestamp {
			t.Errorf("first_access=%d: region carries timestamp %v, want none", fa, regions[0].Timestamp)
		}
	}
}

func TestSplitFramed_TwoRegions(t *testing.T) {
	t.Parallel()

	ts := 40 * time.Millisecond
	pkt := makeFramed(10, 0, 20)
	_, regions, err := splitFramed(pkt, ts)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 2 {
		t.Fatalf("%d regions, want 2", len(regions))
	}

	// first_access=10 → 6 leading bytes complete the previous access unit.
	if len(regions[0].Data) != 6 || regions[0].Timestamp != NoTimestamp {
		t.Errorf("leading region: len %d ts %v, want len 6 and no timestamp",
			len(regions[0].Data), regions[0].Timestamp)
	}
	if len(regions[1].Data) != 14 || regions[1].Timestamp != ts {
		t.Errorf("trailing region: len %d ts %v, want len 14 ts %v",
			len(regions[1].Data), regions[1].Timestamp, ts)
	}
}

func TestSplitFramed_Completeness(t *testing.T) {
	t.Parallel()

	// The concatenation of all regions must reconstruct payload[5:] exactly,
	// for every pointer value, including ones past the packet end.
	for _, payloadLen := range []int{0, 1, 14, 200} {
		for fa := 0; fa < payloadLen+16; fa++ {
			pkt := makeFramed(fa, 0xABCDEF, payloadLen)
			_, regions, err := splitFramed(pkt, NoTimestamp)
			if err != nil {
				t.Fatal(err)
			}

			var joined []byte
			for _, r := range regions {
				joined = append(joined, r.Data...)
			}
			if !bytes.Equal(joined, pkt[prefixSize:]) {
				t.Fatalf("first_access=%d payload=%d: regions do not reassemble payload", fa, payloadLen)
			}
		}
	}
}

func TestSplitFramed_Malformed(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 3, 4} {
		_, regions, err := splitFramed(make([]byte, n), NoTimestamp)
		if !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("len %d: err = %v, want ErrMalformedPacket", n, err)
		}
		if regions != nil {
			t.Errorf("len %d: got %d regions, want none", n, len(regions))
		}
	}
}
