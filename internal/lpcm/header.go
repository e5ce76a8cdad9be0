package lpcm

// Header bit masks for the 24-bit LPCM format word carried after the
// first-access pointer in each DVD LPCM packet.
const (
	headerEmphasis     = 0x800000
	headerMute         = 0x400000
	headerWidthMask    = 0x00C000
	headerWidth24      = 0x008000
	headerWidth20      = 0x004000
	headerRate96       = 0x001000
	headerChannelMask  = 0x000700
	headerChannelShift = 8
	headerDynamicRange = 0x0000FF
)

// Format describes a DVD LPCM substream: the packed on-wire sample layout
// and the byte-aligned output layout it decodes to. Output is always
// big-endian signed PCM; 20-bit input widens to 24-bit output with the low
// nibble zeroed, the other widths keep their depth.
type Format struct {
	SampleRate   int   // 48000 or 96000
	Channels     int   // 1..8
	Width        int   // packed sample width: 16, 20, or 24
	OutWidth     int   // output sample width: 16 or 24
	DynamicRange uint8 // carried through, not acted upon
	Emphasis     bool
	Mute         bool
}

// ParseHeader decodes a 24-bit LPCM format word into a Format. Every
// 24-bit value maps to a valid Format; there is no error path. Callers
// should compare raw header words and skip re-parsing identical ones.
func ParseHeader(header uint32) Format {
	f := Format{
		DynamicRange: uint8(header & headerDynamicRange),
		Mute:         header&headerMute != 0,
		Emphasis:     header&headerEmphasis != 0,
		Channels:     int(header>>headerChannelShift&0x7) + 1,
	}

	switch header & headerWidthMask {
	case headerWidth24:
		f.Width = 24
		f.OutWidth = 24
	case headerWidth20:
		f.Width = 20
		f.OutWidth = 24
	default:
		f.Width = 16
		f.OutWidth = 16
	}

	if header&headerRate96 != 0 {
		f.SampleRate = 96000
	} else {
		f.SampleRate = 48000
	}

	return f
}
