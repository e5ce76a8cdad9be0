package lpcm

import "fmt"

// Repack converts a packed DVD LPCM byte region into canonical big-endian
// output bytes, returning the output and the number of frames (samples per
// channel) it contains. The transform is a pure bit-layout reshuffle: no
// sign extension, rounding, or value conversion is applied.
//
// 16-bit input is returned as-is (ownership of data transfers to the
// result). 24-bit input is reordered in place and the same slice returned.
// 20-bit input expands into a freshly allocated buffer at 24-bit stride
// with the low nibble of each output sample zero-filled.
func Repack(data []byte, channels, width int) ([]byte, int, error) {
	switch width {
	case 16:
		return data, len(data) / channels / 2, nil
	case 24:
		repack24(data)
		return data, len(data) / channels / 3, nil
	case 20:
		return repack20(data), len(data) * 8 / 20 / channels, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}
}

// repack24 rearranges 24-bit LPCM in place. Each 12-byte group holds two
// samples per channel pair with the middle 9 bytes permuted; bytes 0, 1,
// and 11 of every group are already in canonical position.
func repack24(data []byte) {
	for off := 0; off+12 <= len(data); off += 12 {
		src := data[off : off+12]
		var tmp [9]byte

		tmp[0] = src[8]
		tmp[1] = src[2]
		tmp[2] = src[3]
		tmp[3] = src[9]
		tmp[4] = src[4]
		tmp[5] = src[5]
		tmp[6] = src[10]
		tmp[7] = src[6]
		tmp[8] = src[7]

		copy(src[2:11], tmp[:])
	}
}

// repack20 expands 20-bit LPCM into 24-bit output. Each 10-byte input
// group carries four 20-bit samples with the low nibbles collected in the
// last two bytes; the nibble reassembly below is the layout the format
// defines, kept verbatim including the s9&0x0F source for output byte 8.
func repack20(data []byte) []byte {
	groups := len(data) / 10
	out := make([]byte, groups*12)

	for i := 0; i < groups; i++ {
		src := data[i*10 : i*10+10]
		dst := out[i*12 : i*12+12]

		dst[0] = src[0]
		dst[1] = src[1]
		dst[2] = src[8] & 0xF0
		dst[3] = src[2]
		dst[4] = src[3]
		dst[5] = (src[8] & 0x0F) << 4
		dst[6] = src[4]
		dst[7] = src[5]
		dst[8] = src[9] & 0x0F
		dst[9] = src[6]
		dst[10] = src[7]
		dst[11] = (src[9] & 0x0F) << 4
	}

	return out
}
