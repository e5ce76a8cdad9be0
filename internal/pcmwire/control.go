// Package pcmwire defines the wire protocol spoken between the server and
// PCM subscribers over QUIC. A bidirectional control stream carries
// hello/subscribe messages; one unidirectional data stream per subscribed
// track carries format records and PCM frames. All integers are QUIC
// varints unless noted.
package pcmwire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Control message type IDs.
const (
	MsgSubscribe      uint64 = 0x03
	MsgSubscribeOK    uint64 = 0x04
	MsgSubscribeError uint64 = 0x05
	MsgUnsubscribe    uint64 = 0x0a
	MsgGoAway         uint64 = 0x10
	MsgClientHello    uint64 = 0x20
	MsgServerHello    uint64 = 0x21
	MsgStats          uint64 = 0x30 // server→client, JSON payload
)

// Version is the current protocol version.
const Version uint64 = 0x01

// Subscribe error codes.
const (
	ErrCodeUnknownTrack  uint64 = 0x01
	ErrCodeUnknownStream uint64 = 0x02
	ErrCodeInternal      uint64 = 0x03
)

// ClientHello is the first message sent by a subscriber. It names the
// stream key the client wants to attach to.
type ClientHello struct {
	Versions  []uint64
	StreamKey string
}

// ServerHello is the response to a ClientHello, advertising how many audio
// tracks the stream currently carries.
type ServerHello struct {
	SelectedVersion uint64
	TrackCount      uint64
}

// Subscribe requests delivery of one audio track.
type Subscribe struct {
	RequestID  uint64
	TrackIndex uint64
}

// SubscribeOK confirms a subscription and carries the track's current
// format so the client can configure its sink before the first frame.
type SubscribeOK struct {
	RequestID uint64
	Format    Format
}

// SubscribeError rejects a subscription.
type SubscribeError struct {
	RequestID    uint64
	ErrorCode    uint64
	ReasonPhrase string
}

// Unsubscribe cancels a subscription.
type Unsubscribe struct {
	RequestID uint64
}

// GoAway signals a graceful session shutdown.
type GoAway struct {
	Reason string
}

// ReadControlMsg reads a control message from the control stream.
// Wire format: [message_type (varint)] [message_length (uint16 big-endian)] [payload].
func ReadControlMsg(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
		r = br.(io.Reader)
	}
	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read message length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read message payload: %w", err)
		}
	}

	return msgType, payload, nil
}

// WriteControlMsg writes a control message to the control stream as a
// single Write call to ensure atomicity even without external
// synchronization.
func WriteControlMsg(w io.Writer, msgType uint64, payload []byte) error {
	var buf []byte
	buf = quicvarint.Append(buf, msgType)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// ParseClientHello parses a CLIENT_HELLO payload.
func ParseClientHello(data []byte) (ClientHello, error) {
	r := newBufReader(data)
	var ch ClientHello

	numVersions, err := r.readVarint()
	if err != nil {
		return ch, &ParseError{Field: "num_versions", Err: err}
	}
	ch.Versions = make([]uint64, numVersions)
	for i := uint64(0); i < numVersions; i++ {
		v, err := r.readVarint()
		if err != nil {
			return ch, &ParseError{Field: "version", Err: err}
		}
		ch.Versions[i] = v
	}

	key, err := r.readVarIntBytes()
	if err != nil {
		return ch, &ParseError{Field: "stream_key", Err: err}
	}
	ch.StreamKey = string(key)

	return ch, nil
}

// SerializeClientHello serializes a CLIENT_HELLO payload.
func SerializeClientHello(ch ClientHello) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, uint64(len(ch.Versions)))
	for _, v := range ch.Versions {
		buf = quicvarint.Append(buf, v)
	}
	buf = appendVarIntBytes(buf, []byte(ch.StreamKey))
	return buf
}

// ParseServerHello parses a SERVER_HELLO payload.
func ParseServerHello(data []byte) (ServerHello, error) {
	r := newBufReader(data)
	var sh ServerHello

	var err error
	sh.SelectedVersion, err = r.readVarint()
	if err != nil {
		return sh, &ParseError{Field: "selected_version", Err: err}
	}
	sh.TrackCount, err = r.readVarint()
	if err != nil {
		return sh, &ParseError{Field: "track_count", Err: err}
	}
	return sh, nil
}

// SerializeServerHello serializes a SERVER_HELLO payload.
func SerializeServerHello(sh ServerHello) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, sh.SelectedVersion)
	buf = quicvarint.Append(buf, sh.TrackCount)
	return buf
}

// ParseSubscribe parses a SUBSCRIBE payload.
func ParseSubscribe(data []byte) (Subscribe, error) {
	r := newBufReader(data)
	var s Subscribe

	var err error
	s.RequestID, err = r.readVarint()
	if err != nil {
		return s, &ParseError{Field: "request_id", Err: err}
	}
	s.TrackIndex, err = r.readVarint()
	if err != nil {
		return s, &ParseError{Field: "track_index", Err: err}
	}
	return s, nil
}

// SerializeSubscribe serializes a SUBSCRIBE payload.
func SerializeSubscribe(s Subscribe) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, s.RequestID)
	buf = quicvarint.Append(buf, s.TrackIndex)
	return buf
}

// ParseSubscribeOK parses a SUBSCRIBE_OK payload.
func ParseSubscribeOK(data []byte) (SubscribeOK, error) {
	r := newBufReader(data)
	var sok SubscribeOK

	var err error
	sok.RequestID, err = r.readVarint()
	if err != nil {
		return sok, &ParseError{Field: "request_id", Err: err}
	}
	sok.Format, err = parseFormat(r)
	if err != nil {
		return sok, &ParseError{Field: "format", Err: err}
	}
	return sok, nil
}

// SerializeSubscribeOK serializes a SUBSCRIBE_OK payload.
func SerializeSubscribeOK(sok SubscribeOK) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, sok.RequestID)
	buf = appendFormat(buf, sok.Format)
	return buf
}

// ParseSubscribeError parses a SUBSCRIBE_ERROR payload.
func ParseSubscribeError(data []byte) (SubscribeError, error) {
	r := newBufReader(data)
	var se SubscribeError

	var err error
	se.RequestID, err = r.readVarint()
	if err != nil {
		return se, &ParseError{Field: "request_id", Err: err}
	}
	se.ErrorCode, err = r.readVarint()
	if err != nil {
		return se, &ParseError{Field: "error_code", Err: err}
	}
	reason, err := r.readVarIntBytes()
	if err != nil {
		return se, &ParseError{Field: "reason_phrase", Err: err}
	}
	se.ReasonPhrase = string(reason)
	return se, nil
}

// SerializeSubscribeError serializes a SUBSCRIBE_ERROR payload.
func SerializeSubscribeError(se SubscribeError) []byte {
	var buf []byte
	buf = quicvarint.Append(buf, se.RequestID)
	buf = quicvarint.Append(buf, se.ErrorCode)
	buf = appendVarIntBytes(buf, []byte(se.ReasonPhrase))
	return buf
}

// ParseUnsubscribe parses an UNSUBSCRIBE payload.
func ParseUnsubscribe(data []byte) (Unsubscribe, error) {
	r := newBufReader(data)
	reqID, err := r.readVarint()
	if err != nil {
		return Unsubscribe{}, &ParseError{Field: "request_id", Err: err}
	}
	return Unsubscribe{RequestID: reqID}, nil
}

// SerializeUnsubscribe serializes an UNSUBSCRIBE payload.
func SerializeUnsubscribe(u Unsubscribe) []byte {
	return quicvarint.Append(nil, u.RequestID)
}

// SerializeGoAway serializes a GOAWAY payload.
func SerializeGoAway(ga GoAway) []byte {
	return appendVarIntBytes(nil, []byte(ga.Reason))
}

// ParseGoAway parses a GOAWAY payload.
func ParseGoAway(data []byte) (GoAway, error) {
	r := newBufReader(data)
	reason, err := r.readVarIntBytes()
	if err != nil {
		return GoAway{}, &ParseError{Field: "reason", Err: err}
	}
	return GoAway{Reason: string(reason)}, nil
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = quicvarint.Append(buf, uint64(len(data)))
	buf = append(buf, data...)
	return buf
}

// bufReader wraps a byte slice for sequential varint/byte reading.
type bufReader struct {
	data []byte
	pos  int
}

func newBufReader(data []byte) *bufReader {
	return &bufReader{data: data}
}

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, err
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	end := b.pos + int(length)
	if end > len(b.data) || end < b.pos {
		return nil, io.ErrUnexpectedEOF
	}
	val := b.data[b.pos:end]
	b.pos = end
	return val, nil
}
