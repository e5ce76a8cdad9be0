// Command gen-ps synthesizes an MPEG program stream carrying a DVD LPCM
// substream with a sine tone, for integration tests and manual pushes.
// All three packed sample widths are supported.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
)

const (
	packetDurationMs = 10
	substreamLPCM    = 0xA0
	ptsPerSecond     = 90000
)

func main() {
	var (
		outPath  = flag.String("out", "tone.vob", "output file")
		seconds  = flag.Float64("seconds", 10, "duration of audio to generate")
		rate     = flag.Int("rate", 48000, "sample rate (48000 or 96000)")
		bits     = flag.Int("bits", 16, "packed sample width (16, 20 or 24)")
		channels = flag.Int("channels", 2, "channel count (1-8)")
		freq     = flag.Float64("freq", 440, "tone frequency in Hz")
	)
	flag.Parse()

	if err := run(*outPath, *seconds, *rate, *bits, *channels, *freq); err != nil {
		fmt.Fprintln(os.Stderr, "gen-ps:", err)
		os.Exit(1)
	}
}

func run(outPath string, seconds float64, rate, bits, channels int, freq float64) error {
	if rate != 48000 && rate != 96000 {
		return fmt.Errorf("unsupported rate %d", rate)
	}
	if bits != 16 && bits != 20 && bits != 24 {
		return fmt.Errorf("unsupported width %d", bits)
	}
	if channels < 1 || channels > 8 {
		return fmt.Errorf("unsupported channel count %d", channels)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	header := lpcmHeader(rate, bits, channels)
	framesPerPacket := rate * packetDurationMs / 1000
	packets := int(seconds * 1000 / packetDurationMs)

	var phase float64
	step := 2 * math.Pi * freq / float64(rate)

	for i := 0; i < packets; i++ {
		canonical := make([]byte, 0, framesPerPacket*channels*3)
		for s := 0; s < framesPerPacket; s++ {
			v := int32(math.Sin(phase) * 0.5 * float64(1<<23-1))
			phase += step
			for c := 0; c < channels; c++ {
				canonical = append(canonical, byte(v>>16), byte(v>>8), byte(v))
			}
		}
		payload := packSamples(canonical, bits)

		pts := int64(i) * packetDurationMs * ptsPerSecond / 1000
		writePack(w, pts)
		writeLPCMPES(w, pts, header, payload)
	}

	// Program end code.
	w.Write([]byte{0x00, 0x00, 0x01, 0xB9})

	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("wrote %d packets (%gs, %d Hz, %d-bit, %dch) to %s\n",
		packets, seconds, rate, bits, channels, outPath)
	return nil
}

// lpcmHeader builds the 3-byte audio header carried in every framed packet.
func lpcmHeader(rate, bits, channels int) uint32 {
	var h uint32
	switch bits {
	case 24:
		h |= 0x8000
	case 20:
		h |= 0x4000
	}
	if rate == 96000 {
		h |= 0x1000
	}
	h |= uint32(channels-1) << 8
	h |= 0x80 // neutral dynamic range
	return h
}

// packSamples converts canonical 24-bit big-endian samples into the packed
// substream layout for the given width.
func packSamples(canonical []byte, bits int) []byte {
	switch bits {
	case 16:
		out := make([]byte, 0, len(canonical)/3*2)
		for i := 0; i+3 <= len(canonical); i += 3 {
			out = append(out, canonical[i], canonical[i+1])
		}
		return out
	case 24:
		out := make([]byte, len(canonical))
		for off := 0; off+12 <= len(canonical); off += 12 {
			c := canonical[off : off+12]
			dst := out[off : off+12]
			dst[0], dst[1] = c[0], c[1]
			dst[2], dst[3] = c[3], c[4]
			dst[4], dst[5] = c[6], c[7]
			dst[6], dst[7] = c[9], c[10]
			dst[8] = c[2]
			dst[9] = c[5]
			dst[10] = c[8]
			dst[11] = c[11]
		}
		return out
	case 20:
		groups := len(canonical) / 12
		out := make([]byte, groups*10)
		for i := 0; i < groups; i++ {
			c := canonical[i*12 : i*12+12]
			dst := out[i*10 : i*10+10]
			dst[0], dst[1] = c[0], c[1]
			dst[2], dst[3] = c[3], c[4]
			dst[4], dst[5] = c[6], c[7]
			dst[6], dst[7] = c[9], c[10]
			dst[8] = c[2]&0xF0 | c[5]>>4
			dst[9] = c[8]&0xF0 | c[11]>>4
		}
		return out
	}
	return nil
}

// writePack emits an MPEG-2 pack header with the SCR set from the PTS.
func writePack(w *bufio.Writer, scrBase int64) {
	var b [14]byte
	b[0], b[1], b[2], b[3] = 0x00, 0x00, 0x01, 0xBA
	b[4] = 0x40 | byte(scrBase>>27)&0x38 | 0x04 | byte(scrBase>>28)&0x03
	b[5] = byte(scrBase >> 20)
	b[6] = byte(scrBase>>12)&0xF8 | 0x04 | byte(scrBase>>13)&0x03
	b[7] = byte(scrBase >> 5)
	b[8] = byte(scrBase<<3)&0xF8 | 0x04 // SCR ext 0
	b[9] = 0x01
	// mux rate 25200 (50400*50 bytes/s ~ 10 Mbit/s), marker bits set
	muxRate := 25200
	b[10] = byte(muxRate >> 14)
	b[11] = byte(muxRate >> 6)
	b[12] = byte(muxRate<<2) | 0x03
	b[13] = 0xF8 // no stuffing
	w.Write(b[:])
}

// writeLPCMPES emits one private_stream_1 PES packet carrying a framed
// LPCM packet: substream ID, frame count, first-access pointer, header,
// payload.
func writeLPCMPES(w *bufio.Writer, pts int64, header uint32, payload []byte) {
	// optional header (3) + PTS (5) + substream framing (2+2+3) + payload
	length := 3 + 5 + 7 + len(payload)

	w.Write([]byte{0x00, 0x00, 0x01, 0xBD, byte(length >> 8), byte(length)})

	w.Write([]byte{0x81, 0x80, 0x05}) // marker+original, PTS present, header len 5
	var p [5]byte
	p[0] = 0x21 | byte(pts>>29)&0x0E
	p[1] = byte(pts >> 22)
	p[2] = byte(pts>>14) | 0x01
	p[3] = byte(pts >> 7)
	p[4] = byte(pts<<1) | 0x01
	w.Write(p[:])

	w.Write([]byte{substreamLPCM, 0x01})
	// first_access = 4: the header's region starts right after the prefix.
	w.Write([]byte{0x00, 0x04, byte(header >> 16), byte(header >> 8), byte(header)})
	w.Write(payload)
}
