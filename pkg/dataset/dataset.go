// Package dataset implements directory-walk dataset backends.
//
// A DirSource scans a directory of frame files (and optionally a parallel
// ground-truth directory) and exposes them as an index-addressed packet
// sequence implementing loader.Source. File decoding is pluggable through
// the Decoder interface; a netpbm decoder and a raw passthrough are
// provided, anything heavier (video containers, compressed codecs) belongs
// to the surrounding evaluation harness.
package dataset

import "fmt"

// PacketName formats a packet index for file naming: six digits for batches
// under ten million packets, nine otherwise.
func PacketName(idx, total uint64) string {
	if total < 10_000_000 {
		return fmt.Sprintf("%06d", idx)
	}
	return fmt.Sprintf("%09d", idx)
}
