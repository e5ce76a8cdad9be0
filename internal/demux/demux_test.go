package demux

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aria-media/aria/internal/media"
)

// appendLPCMPES appends a private_stream_1 PES packet carrying one framed
// LPCM packet for the given substream. pts < 0 omits the timestamp.
func appendLPCMPES(buf []byte, sub uint8, pts int64, firstAccess int, header uint32, payload []byte) []byte {
	body := []byte{0x80, 0x00, 0x00}
	if pts >= 0 {
		body = []byte{0x80, 0x80, 0x05,
			0x21 | byte(pts>>30&0x07)<<1,
			byte(pts >> 22),
			byte(pts>>15&0x7F)<<1 | 0x01,
			byte(pts >> 7),
			byte(pts&0x7F)<<1 | 0x01,
		}
	}
	body = append(body, sub, 0x01, // substream ID, frame count
		byte(firstAccess>>8), byte(firstAccess),
		byte(header>>16), byte(header>>8), byte(header))
	body = append(body, payload...)

	buf = append(buf, 0x00, 0x00, 0x01, 0xBD)
	buf = append(buf, byte(len(body)>>8), byte(len(body)))
	return append(buf, body...)
}

// runDemuxer demuxes a full stream and returns everything it produced.
func runDemuxer(t *testing.T, stream []byte) (*Demuxer, []*media.PCMFrame, []media.AudioInfo) {
	t.Helper()

	d := NewDemuxer(bytes.NewReader(stream), nil)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()

	var frames []*media.PCMFrame
	var infos []media.AudioInfo
	audioOpen, infoOpen := true, true
	for audioOpen || infoOpen {
		select {
		case f, ok := <-d.Audio():
			if !ok {
				audioOpen = false
				continue
			}
			frames = append(frames, f)
		case info, ok := <-d.Info():
			if !ok {
				infoOpen = false
				continue
			}
			infos = append(infos, info)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	return d, frames, infos
}

func TestDemuxer_SingleTrack(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0x11}, 40)
	var stream []byte
	// First packet: the access-unit pointer carves off a 4-byte carry-over
	// region, so the PES PTS lands on the trailing region.
	stream = appendLPCMPES(stream, 0xA0, 90000, 8, 0x000100, payload) // 16-bit stereo 48k
	stream = appendLPCMPES(stream, 0xA0, -1, 4, 0x000100, payload)

	d, frames, infos := runDemuxer(t, stream)

	if len(infos) != 1 {
		t.Fatalf("%d announcements, want 1", len(infos))
	}
	want := media.AudioInfo{TrackIndex: 0, SampleRate: 48000, Channels: 2, BitDepth: 16}
	if infos[0] != want {
		t.Errorf("info = %+v, want %+v", infos[0], want)
	}

	if len(frames) != 3 {
		t.Fatalf("%d frames, want 3", len(frames))
	}
	// Carry-over region: 4 bytes / (2ch * 2B) = 1 sample frame at clock zero.
	oneFrame := time.Second / 48000
	if frames[0].PTS != 0 || frames[0].Duration != oneFrame {
		t.Errorf("frame 0 = %v/%v, want 0/%v", frames[0].PTS, frames[0].Duration, oneFrame)
	}
	// Trailing region carries the PES PTS: 36 bytes = 9 sample frames.
	if frames[1].PTS != time.Second {
		t.Errorf("frame 1 PTS = %v, want 1s", frames[1].PTS)
	}
	nineFrames := 9 * time.Second / 48000
	if frames[1].Duration != nineFrames {
		t.Errorf("frame 1 duration = %v, want %v", frames[1].Duration, nineFrames)
	}
	// Second packet has no PTS: the decoder clock continues from the first.
	if wantPTS := time.Second + nineFrames; frames[2].PTS != wantPTS {
		t.Errorf("frame 2 PTS = %v, want %v", frames[2].PTS, wantPTS)
	}
	// 40 bytes / (2ch * 2B) = 10 sample frames.
	if dur := 10 * time.Second / 48000; frames[2].Duration != dur {
		t.Errorf("frame 2 duration = %v, want %v", frames[2].Duration, dur)
	}

	tracks := d.AudioTracks()
	if len(tracks) != 1 || tracks[0].SubstreamID != 0xA0 {
		t.Errorf("tracks = %+v", tracks)
	}
	select {
	case <-d.TracksReady():
	default:
		t.Error("TracksReady not closed")
	}
}

func TestDemuxer_MultipleSubstreams(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0x00}, 20)
	var stream []byte
	stream = appendLPCMPES(stream, 0xA0, 0, 4, 0x000000, payload)
	stream = appendLPCMPES(stream, 0xA1, 0, 4, 0x001000, payload) // 96kHz track
	stream = appendLPCMPES(stream, 0xA0, -1, 4, 0x000000, payload)

	d, frames, infos := runDemuxer(t, stream)

	if len(infos) != 2 {
		t.Fatalf("%d announcements, want 2", len(infos))
	}
	if infos[0].TrackIndex != 0 || infos[1].TrackIndex != 1 {
		t.Errorf("track indices %d, %d", infos[0].TrackIndex, infos[1].TrackIndex)
	}
	if infos[1].SampleRate != 96000 {
		t.Errorf("track 1 rate = %d, want 96000", infos[1].SampleRate)
	}

	var perTrack [2]int
	for _, f := range frames {
		perTrack[f.TrackIndex]++
	}
	if perTrack[0] != 2 || perTrack[1] != 1 {
		t.Errorf("frames per track = %v, want [2 1]", perTrack)
	}

	tracks := d.AudioTracks()
	if len(tracks) != 2 || tracks[1].SubstreamID != 0xA1 {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestDemuxer_IgnoresNonLPCMSubstreams(t *testing.T) {
	t.Parallel()

	var stream []byte
	// AC-3 substream: not ours.
	stream = appendLPCMPES(stream, 0x80, 0, 4, 0, bytes.Repeat([]byte{0xFF}, 16))
	stream = appendLPCMPES(stream, 0xA0, 0, 4, 0, bytes.Repeat([]byte{0x00}, 16))

	_, frames, infos := runDemuxer(t, stream)
	if len(infos) != 1 || len(frames) != 1 {
		t.Errorf("infos=%d frames=%d, want 1 and 1", len(infos), len(frames))
	}
}

type countingStats struct {
	frames          int
	formats         int
	discontinuities int
}

func (s *countingStats) RecordPCMFrame(int, int64, time.Duration, int, int, int) { s.frames++ }
func (s *countingStats) RecordTrackFormat(int, media.AudioInfo)                  { s.formats++ }
func (s *countingStats) RecordDiscontinuity(int)                                 { s.discontinuities++ }

func TestDemuxer_DropsMalformedPacket(t *testing.T) {
	t.Parallel()

	var stream []byte
	// Framed packet cut inside the 5-byte prefix.
	body := []byte{0x80, 0x00, 0x00, 0xA0, 0x01, 0x00, 0x04}
	stream = append(stream, 0x00, 0x00, 0x01, 0xBD, byte(len(body)>>8), byte(len(body)))
	stream = append(stream, body...)
	stream = appendLPCMPES(stream, 0xA0, 0, 4, 0, bytes.Repeat([]byte{0x00}, 8))

	d := NewDemuxer(bytes.NewReader(stream), nil)
	stats := &countingStats{}
	d.SetStats(stats)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()
	var frames int
	for range d.Audio() {
		frames++
	}
	for range d.Info() {
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	if frames != 1 {
		t.Errorf("%d frames, want 1 (malformed packet dropped)", frames)
	}
	if stats.discontinuities != 1 {
		t.Errorf("%d discontinuities recorded, want 1", stats.discontinuities)
	}
	if stats.frames != 1 || stats.formats != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDemuxer_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDemuxer(bytes.NewReader(appendLPCMPES(nil, 0xA0, 0, 4, 0, nil)), nil)
	if err := d.Run(ctx); err == nil {
		t.Fatal("want context error")
	}
}

func TestDemuxer_CancelWithBlockedInfoChannel(t *testing.T) {
	t.Parallel()

	// A header word that flaps on every packet queues an announcement per
	// packet. With nothing draining Info, the channel fills and the send
	// blocks; cancellation must still unwind Run.
	payload := bytes.Repeat([]byte{0x11}, 12)
	var stream []byte
	for i := 0; i < 12; i++ {
		header := uint32(i%8) << 8 // channel count flaps every packet
		stream = appendLPCMPES(stream, 0xA0, -1, 4, header, payload)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDemuxer(bytes.NewReader(stream), nil)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("want context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
