// Command srt-push streams a VOB/MPEG-PS file to an aria SRT listener at
// a realtime pace, looping forever. Generate input with gen-ps or rip it
// from a disc.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	srt "github.com/zsiec/srtgo"
)

const sectorSize = 2048

func main() {
	fileFlag := flag.String("file", "", "PS file to push")
	keyFlag := flag.String("key", "", "stream key (default: filename without extension)")
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT server address")
	rateFlag := flag.Float64("rate", 1.5, "push rate in Mbit/s")
	flag.Parse()

	filePath := *fileFlag
	if filePath == "" && flag.NArg() > 0 {
		filePath = flag.Arg(0)
	}
	if filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: srt-push --file title.vob [--key demo] [--addr host:port]")
		os.Exit(1)
	}

	streamID := *keyFlag
	if streamID == "" {
		base := filepath.Base(filePath)
		streamID = base[:len(base)-len(filepath.Ext(base))]
	}
	streamID = "live/" + streamID

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read file: %v\n", err)
		os.Exit(1)
	}

	bytesPerSec := *rateFlag * 1e6 / 8
	fmt.Printf("File: %s (%d bytes, %.2f Mbit/s)\n", filePath, len(data), *rateFlag)

	for {
		fmt.Printf("[%s] Connecting to SRT %s...\n", streamID, *addrFlag)

		cfg := srt.DefaultConfig()
		cfg.StreamID = streamID

		conn, err := srt.Dial(*addrFlag, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] SRT connect failed: %v, retrying...\n", streamID, err)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("[%s] Connected, streaming continuously\n", streamID)
		writeErr := streamLoop(conn, data, bytesPerSec, streamID)
		conn.Close()

		if writeErr != nil {
			fmt.Fprintf(os.Stderr, "[%s] Connection lost: %v, reconnecting...\n", streamID, writeErr)
			time.Sleep(time.Second)
		}
	}
}

func streamLoop(conn *srt.Conn, data []byte, bytesPerSec float64, streamID string) error {
	globalStart := time.Now()
	var totalBytesSent int64
	lastLog := time.Now()
	const logInterval = 10 * time.Second

	for loop := 1; ; loop++ {
		for i := 0; i < len(data); i += sectorSize {
			end := i + sectorSize
			if end > len(data) {
				end = len(data)
			}

			if _, err := conn.Write(data[i:end]); err != nil {
				return err
			}
			totalBytesSent += int64(end - i)

			// Pace against the global clock so timing is continuous across
			// loop boundaries -- no burst/gap at the seam.
			expectedTime := float64(totalBytesSent) / bytesPerSec
			elapsed := time.Since(globalStart).Seconds()
			if expectedTime > elapsed {
				time.Sleep(time.Duration((expectedTime - elapsed) * float64(time.Second)))
			}

			if time.Since(lastLog) >= logInterval {
				actualRate := float64(totalBytesSent) / time.Since(globalStart).Seconds()
				fmt.Printf("[%s] loop=%d rate=%.0f B/s total=%.1f MB\n",
					streamID, loop, actualRate, float64(totalBytesSent)/(1024*1024))
				lastLog = time.Now()
			}
		}
	}
}
