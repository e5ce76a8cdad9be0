package mpegps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// maxPESPacketLength bounds a single PES packet body. The 16-bit length
// field already caps it, but a corrupted stream should not allocate more.
const maxPESPacketLength = 1 << 16

// Demuxer reads an MPEG program stream and produces DemuxerData containing
// parsed pack headers, the program stream map, and PES packets. Corrupt
// spans are skipped by resynchronizing on the next start code.
type Demuxer struct {
	ctx context.Context
	br  *bufio.Reader
}

// NewDemuxer creates a program stream demuxer reading from r.
func NewDemuxer(ctx context.Context, r io.Reader) *Demuxer {
	return &Demuxer{
		ctx: ctx,
		br:  bufio.NewReaderSize(r, 64*1024),
	}
}

// NextData returns the next parsed unit from the stream. Returns io.EOF
// when the stream ends or a program_end_code is reached.
func (d *Demuxer) NextData() (*DemuxerData, error) {
	for {
		if d.ctx.Err() != nil {
			return nil, d.ctx.Err()
		}

		id, err := d.nextStartCode()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}

		switch {
		case id == StreamIDProgramEnd:
			return nil, io.EOF

		case id == StreamIDPackHeader:
			hdr := make([]byte, packHeaderSize)
			if _, err := io.ReadFull(d.br, hdr); err != nil {
				return nil, eofOrErr(err)
			}
			pack, stuffing, err := parsePackHeader(hdr)
			if err != nil {
				continue // resync
			}
			if _, err := d.br.Discard(stuffing); err != nil {
				return nil, eofOrErr(err)
			}
			return &DemuxerData{Pack: pack}, nil

		case id == StreamIDSystemHeader:
			if err := d.discardSection(); err != nil {
				return nil, err
			}

		case id == StreamIDProgramMap:
			body, err := d.readSection()
			if err != nil {
				return nil, err
			}
			psm, err := parsePSM(body)
			if err != nil {
				continue // resync
			}
			return &DemuxerData{PSM: psm}, nil

		case id == StreamIDPaddingStream:
			if err := d.discardSection(); err != nil {
				return nil, err
			}

		case isPESStreamID(id):
			body, err := d.readSection()
			if err != nil {
				return nil, err
			}
			pes, err := parsePES(id, body)
			if err != nil {
				continue // resync
			}
			return &DemuxerData{PES: pes}, nil

		default:
			// Unknown start code: resync on the next one.
		}
	}
}

// isPESStreamID reports whether the start code names a PES-carrying stream:
// private streams, MPEG audio (0xC0-0xDF) and video (0xE0-0xEF).
func isPESStreamID(id uint8) bool {
	return id == StreamIDPrivateStream1 || id == StreamIDPrivateStream2 ||
		(id >= 0xC0 && id <= 0xEF)
}

// nextStartCode scans forward to the next 0x000001 prefix and returns the
// start code byte that follows it.
func (d *Demuxer) nextStartCode() (uint8, error) {
	var window [3]byte
	if _, err := io.ReadFull(d.br, window[:]); err != nil {
		return 0, eofOrErr(err)
	}
	for {
		if window[0] == 0x00 && window[1] == 0x00 && window[2] == 0x01 {
			id, err := d.br.ReadByte()
			if err != nil {
				return 0, eofOrErr(err)
			}
			return id, nil
		}
		b, err := d.br.ReadByte()
		if err != nil {
			return 0, eofOrErr(err)
		}
		window[0], window[1], window[2] = window[1], window[2], b
	}
}

// readSection reads a 16-bit big-endian length field and the body it covers.
func (d *Demuxer) readSection() ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(d.br, lenBuf[:]); err != nil {
		return nil, eofOrErr(err)
	}
	n := int(lenBuf[0])<<8 | int(lenBuf[1])
	if n > maxPESPacketLength {
		return nil, fmt.Errorf("mpegps: section length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(d.br, body); err != nil {
		return nil, eofOrErr(err)
	}
	return body, nil
}

func (d *Demuxer) discardSection() error {
	var lenBuf [2]byte
	if _, err := io.ReadFull(d.br, lenBuf[:]); err != nil {
		return eofOrErr(err)
	}
	n := int(lenBuf[0])<<8 | int(lenBuf[1])
	if _, err := d.br.Discard(n); err != nil {
		return eofOrErr(err)
	}
	return nil
}

// eofOrErr maps a short read at end of stream to a clean io.EOF.
func eofOrErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}
