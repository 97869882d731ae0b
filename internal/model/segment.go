package model

// SegmentDescriptor identifies one media segment of an asset.
//
// Indices are dense and 0-based: resolution of a manifest with N segments
// yields exactly one descriptor per index in [0, N), in playlist order,
// and the final concatenation follows ascending index order.
type SegmentDescriptor struct {
	// Index is the segment's position in the final stream.
	Index int

	// URI is the absolute source URI of the segment.
	URI string
}

// SegmentFile is the local result of fetching one segment.
//
// Decrypted records whether the bytes at rest are plaintext. The flag is
// what guarantees decryption happens exactly once across the fetch and
// merge stages: the assembler decrypts a file only when a key is present
// and Decrypted is false. Across runs the state is carried by a marker
// file next to the segment (see Asset.DecryptedMarkerPath), never
// re-derived from configuration.
type SegmentFile struct {
	// Path is the local file holding the segment bytes.
	Path string

	// Size is the number of bytes written, for progress reporting.
	Size int64

	// Decrypted is true when the file holds plaintext.
	Decrypted bool
}
