package pcmwire

import (
	"bytes"
	"errors"
	"testing"
)

func TestControlMsgFraming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	payload := SerializeClientHello(ClientHello{
		Versions:  []uint64{Version},
		StreamKey: "studio-a",
	})
	if err := WriteControlMsg(&buf, MsgClientHello, payload); err != nil {
		t.Fatal(err)
	}
	if err := WriteControlMsg(&buf, MsgGoAway, SerializeGoAway(GoAway{Reason: "draining"})); err != nil {
		t.Fatal(err)
	}

	msgType, p, err := ReadControlMsg(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgClientHello {
		t.Fatalf("message type = %#x, want CLIENT_HELLO", msgType)
	}
	ch, err := ParseClientHello(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.Versions) != 1 || ch.Versions[0] != Version || ch.StreamKey != "studio-a" {
		t.Errorf("hello = %+v", ch)
	}

	msgType, p, err = ReadControlMsg(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if msgType != MsgGoAway {
		t.Fatalf("message type = %#x, want GOAWAY", msgType)
	}
	ga, err := ParseGoAway(p)
	if err != nil || ga.Reason != "draining" {
		t.Errorf("goaway = %+v, %v", ga, err)
	}
}

func TestSubscribeHandshake(t *testing.T) {
	t.Parallel()

	s, err := ParseSubscribe(SerializeSubscribe(Subscribe{RequestID: 7, TrackIndex: 2}))
	if err != nil {
		t.Fatal(err)
	}
	if s.RequestID != 7 || s.TrackIndex != 2 {
		t.Errorf("subscribe = %+v", s)
	}

	format := Format{SampleRate: 96000, Channels: 2, BitDepth: 24, Emphasis: true, DynamicRange: 0x80}
	sok, err := ParseSubscribeOK(SerializeSubscribeOK(SubscribeOK{RequestID: 7, Format: format}))
	if err != nil {
		t.Fatal(err)
	}
	if sok.RequestID != 7 || sok.Format != format {
		t.Errorf("subscribe ok = %+v", sok)
	}

	se, err := ParseSubscribeError(SerializeSubscribeError(SubscribeError{
		RequestID: 9, ErrorCode: ErrCodeUnknownTrack, ReasonPhrase: "no such track",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if se.ErrorCode != ErrCodeUnknownTrack || se.ReasonPhrase != "no such track" {
		t.Errorf("subscribe error = %+v", se)
	}
}

func TestServerHello(t *testing.T) {
	t.Parallel()

	sh, err := ParseServerHello(SerializeServerHello(ServerHello{SelectedVersion: Version, TrackCount: 3}))
	if err != nil {
		t.Fatal(err)
	}
	if sh.SelectedVersion != Version || sh.TrackCount != 3 {
		t.Errorf("server hello = %+v", sh)
	}
}

func TestParseTruncated(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		parse func([]byte) error
		data  []byte
	}{
		{"client hello", func(d []byte) error { _, err := ParseClientHello(d); return err }, []byte{0x02, 0x01}},
		{"subscribe", func(d []byte) error { _, err := ParseSubscribe(d); return err }, []byte{0x07}},
		{"subscribe ok", func(d []byte) error { _, err := ParseSubscribeOK(d); return err }, []byte{0x07, 0x01}},
		{"subscribe error", func(d []byte) error { _, err := ParseSubscribeError(d); return err }, []byte{}},
		{"unsubscribe", func(d []byte) error { _, err := ParseUnsubscribe(d); return err }, []byte{}},
		{"bad length prefix", func(d []byte) error { _, err := ParseGoAway(d); return err }, []byte{0x20, 0x41}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.parse(tc.data)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Field == "" {
				t.Error("ParseError carries no field name")
			}
		})
	}
}

func FuzzParseControl(f *testing.F) {
	f.Add(SerializeClientHello(ClientHello{Versions: []uint64{Version}, StreamKey: "k"}))
	f.Add(SerializeSubscribeOK(SubscribeOK{RequestID: 1, Format: Format{SampleRate: 48000}}))
	f.Add([]byte{0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		ParseClientHello(data)
		ParseServerHello(data)
		ParseSubscribe(data)
		ParseSubscribeOK(data)
		ParseSubscribeError(data)
		ParseUnsubscribe(data)
		ParseGoAway(data)
	})
}
