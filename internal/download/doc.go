// Package download provides the orchestration logic for fetching one
// HLS asset.
//
// # Downloader
//
// The Downloader coordinates the entire pipeline:
//
//  1. Resolve the manifest into a flattened segment list
//  2. Fan segment fetches out concurrently under the worker limit
//  3. Verify the pass downloaded every segment
//  4. Retry the whole pipeline (manifest refetch included) on shortfall
//  5. Hand off to the assembler for concatenation and remux
//
// # Basic usage
//
//	dl, err := download.NewDownloader(manifestURL, "/videos/movie", settings, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	status, err := dl.Run(ctx)
//	fmt.Println(status) // "success", "already-complete", ...
//
// # Concurrency
//
// Fetches of one pass run under an errgroup bounded by
// Settings.MaxConcurrentSegments; the group wait is the barrier between
// the fetch and verify phases. Each fetch owns exactly one index of the
// result slice, so the shared state needs no locking.
//
// # Failure handling
//
// Individual segment failures never abort a pass; they leave empty slots
// that the verify step converts into a whole-pipeline retry, bounded by
// Settings.RetryMaxCount. Unsupported manifest shapes and invalid key
// material fail immediately instead of burning retries.
package download
