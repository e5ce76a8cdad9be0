package mpegps

import "testing"

func TestParsePSM(t *testing.T) {
	t.Parallel()

	// Two streams, one with a descriptor to skip, plus a dummy CRC.
	body := []byte{
		0xE0, 0xFF, // current_next + version, reserved
		0x00, 0x00, // program_stream_info_length
		0x00, 0x0A, // elementary_stream_map_length
		0x83, 0xBD, 0x00, 0x02, 0xAA, 0xBB, // LPCM on private_stream_1, 2 info bytes
		0x02, 0xE0, 0x00, 0x00, // MPEG-2 video
		0x00, 0x00, 0x00, 0x00, // CRC32
	}

	psm, err := parsePSM(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(psm.ElementaryStreams) != 2 {
		t.Fatalf("%d streams, want 2", len(psm.ElementaryStreams))
	}
	if es := psm.ElementaryStreams[0]; es.StreamID != 0xBD || es.StreamType != 0x83 {
		t.Errorf("stream 0 = %+v", es)
	}
	if es := psm.ElementaryStreams[1]; es.StreamID != 0xE0 || es.StreamType != 0x02 {
		t.Errorf("stream 1 = %+v", es)
	}
}

func TestParsePSM_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body []byte
	}{
		{"too short", []byte{0xE0}},
		{"descriptor overrun", []byte{0xE0, 0xFF, 0xFF, 0xFF, 0x00, 0x00}},
		{"stream map overrun", []byte{0xE0, 0xFF, 0x00, 0x00, 0xFF, 0xFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parsePSM(tc.body); err == nil {
				t.Error("want error")
			}
		})
	}
}
