// Command aria-extract decodes the LPCM audio of a DVD program stream
// (VOB) file into a WAV file or raw big-endian PCM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aria-media/aria/internal/demux"
	"github.com/aria-media/aria/internal/media"
	"github.com/aria-media/aria/internal/wav"
)

func main() {
	var (
		inPath  = flag.String("in", "", "input VOB/MPEG-PS file")
		outPath = flag.String("out", "out.wav", "output file")
		track   = flag.Int("track", 0, "audio track index to extract")
		raw     = flag.Bool("raw", false, "write raw big-endian PCM instead of WAV")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: aria-extract -in title.vob [-out out.wav] [-track 0] [-raw]")
		os.Exit(2)
	}

	if err := run(*inPath, *outPath, *track, *raw); err != nil {
		fmt.Fprintln(os.Stderr, "aria-extract:", err)
		os.Exit(1)
	}
}

func run(inPath, outPath string, track int, raw bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	d := demux.NewDemuxer(in, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	demuxErr := make(chan error, 1)
	go func() {
		demuxErr <- d.Run(ctx)
	}()

	var (
		w      *wav.Writer
		info   media.AudioInfo
		frames int64
		bytes  int64
	)
	audioCh := d.Audio()
	infoCh := d.Info()

	for audioCh != nil || infoCh != nil {
		select {
		case i, ok := <-infoCh:
			if !ok {
				infoCh = nil
				continue
			}
			if i.TrackIndex != track {
				continue
			}
			if w != nil && (i.SampleRate != info.SampleRate || i.Channels != info.Channels || i.BitDepth != info.BitDepth) {
				return fmt.Errorf("format changed mid-stream at frame %d, extract ranges separately", frames)
			}
			info = i
			if w == nil && !raw {
				w, err = wav.NewWriter(out, i.SampleRate, i.Channels, i.BitDepth)
				if err != nil {
					return err
				}
				slog.Info("track format", "rate", i.SampleRate, "channels", i.Channels, "bits", i.BitDepth)
			}

		case frame, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			if frame.TrackIndex != track {
				continue
			}
			if raw {
				if _, err := out.Write(frame.Data); err != nil {
					return err
				}
			} else {
				if w == nil {
					return fmt.Errorf("frame before format announcement")
				}
				if err := w.WriteFrame(frame); err != nil {
					return err
				}
			}
			frames++
			bytes += int64(len(frame.Data))
		}
	}

	if err := <-demuxErr; err != nil {
		return err
	}
	if w != nil {
		if err := w.Close(); err != nil {
			return err
		}
	}
	if frames == 0 {
		return fmt.Errorf("no LPCM frames found for track %d", track)
	}

	fmt.Printf("extracted %d frames (%d bytes) to %s\n", frames, bytes, outPath)
	return nil
}
