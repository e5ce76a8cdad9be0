// Package lpcm decodes DVD-Video LPCM audio substreams into canonical
// big-endian signed PCM. It handles the 3-byte format header carried by
// DVD "private stream 1" packets, the first-access-unit split that assigns
// the upstream timestamp to the correct half of a packet, and the packed
// 16/20/24-bit sample layouts, repacking them into byte-aligned 16- or
// 24-bit output without any value conversion.
//
// The central type is [Decoder], which accepts either DVD-framed packets
// via [Decoder.DecodeFramed] or pre-unwrapped raw LPCM via
// [Decoder.DecodeRaw] after an explicit [Decoder.SetFormat]. A Decoder is
// not safe for concurrent use; callers must serialize access per instance.
package lpcm
