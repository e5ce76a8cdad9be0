// Package srt implements SRT (Secure Reliable Transport) ingest, including
// both listener-mode (Server) for accepting incoming publish connections and
// caller-mode (Caller) for pulling program streams from remote SRT sources.
package srt
