// Package model defines the core data structures used throughout
// the hls-downloader application.
//
// # Asset
//
// Asset computes the on-disk layout for one download from the caller's
// save path:
//
//	asset := model.NewAsset("/videos/movie")
//	fmt.Println(asset.OutputPath)     // /videos/movie.mp4
//	fmt.Println(asset.SegmentPath(3)) // /videos/movie/hls/3.ts
//
// # Segments
//
// SegmentDescriptor is one entry of the resolved download plan;
// SegmentFile is the local result of fetching it, including the
// decrypted-at-rest flag consumed by the assembler.
//
// # KeyMaterial
//
// KeyMaterial normalizes the decryption key and IV, including the
// key-as-IV fallback used when no IV is declared anywhere.
//
// # Status
//
// Status is the exit contract of a run: already-complete, success,
// failed-empty-source, failed-retry-exhausted or failed-merge.
package model
