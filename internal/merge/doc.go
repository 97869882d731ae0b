// Package merge turns the per-segment files of a completed download into
// one playable container: ordered concatenation into a scratch stream,
// deferred decryption for files still holding ciphertext, then a
// stream-copy remux via ffmpeg.
//
// Merge success is defined purely on the output: it must exist as a
// regular file with non-zero size. A remux call that "succeeds" but
// leaves nothing usable is still a merge failure.
package merge
