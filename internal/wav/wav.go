// Package wav writes RIFF/WAVE files from decoded PCM frames. The header
// is written with placeholder sizes and patched when the writer is closed,
// so the output must be seekable.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/aria-media/aria/internal/media"
)

const headerSize = 44

var ErrClosed = errors.New("wav: writer closed")

// Writer streams PCM frames into a WAVE file. Incoming samples are
// big-endian; WAVE stores little-endian, so each sample is byte-swapped.
type Writer struct {
	ws io.WriteSeeker

	sampleRate int
	channels   int
	bitDepth   int

	dataBytes uint32
	closed    bool
}

// NewWriter writes the WAVE header for the given format and returns a
// Writer ready to accept frames.
func NewWriter(ws io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("wav: invalid format %d Hz %dch", sampleRate, channels)
	}
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("wav: unsupported bit depth %d", bitDepth)
	}
	w := &Writer{
		ws:         ws,
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	var hdr [headerSize]byte

	bytesPerSample := w.bitDepth / 8
	blockAlign := w.channels * bytesPerSample
	byteRate := w.sampleRate * blockAlign

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+w.dataBytes)
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(w.bitDepth))

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], w.dataBytes)

	_, err := w.ws.Write(hdr[:])
	return err
}

// WriteFrame appends one frame's samples. The frame format must match the
// writer's format.
func (w *Writer) WriteFrame(frame *media.PCMFrame) error {
	if w.closed {
		return ErrClosed
	}
	if frame.SampleRate != w.sampleRate || frame.Channels != w.channels || frame.BitDepth != w.bitDepth {
		return fmt.Errorf("wav: frame format %d Hz %dch %d-bit does not match writer %d Hz %dch %d-bit",
			frame.SampleRate, frame.Channels, frame.BitDepth,
			w.sampleRate, w.channels, w.bitDepth)
	}
	return w.writeSamples(frame.Data)
}

// WriteSamples appends raw big-endian samples without format checking.
func (w *Writer) WriteSamples(data []byte) error {
	if w.closed {
		return ErrClosed
	}
	return w.writeSamples(data)
}

func (w *Writer) writeSamples(data []byte) error {
	bytesPerSample := w.bitDepth / 8
	if len(data)%bytesPerSample != 0 {
		return fmt.Errorf("wav: payload not sample-aligned: %d bytes", len(data))
	}

	out := make([]byte, len(data))
	switch w.bitDepth {
	case 16:
		for i := 0; i < len(data); i += 2 {
			out[i], out[i+1] = data[i+1], data[i]
		}
	case 24:
		for i := 0; i < len(data); i += 3 {
			out[i], out[i+1], out[i+2] = data[i+2], data[i+1], data[i]
		}
	}

	n, err := w.ws.Write(out)
	w.dataBytes += uint32(n)
	return err
}

// Close patches the RIFF and data chunk sizes. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := w.writeHeader(); err != nil {
		return err
	}
	_, err := w.ws.Seek(0, io.SeekEnd)
	return err
}
