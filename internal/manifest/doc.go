// Package manifest resolves an HLS manifest URL into a flattened
// download plan: an ordered list of absolute segment URIs, the optional
// decryption key material and the optional initialization segment.
//
// Multi-variant manifests are followed by always selecting the highest
// declared bandwidth, as a loop with a defensive depth cap rather than
// recursion. Resolution also persists a normalized manifest copy with
// every remote URI rewritten to the local filename the pipeline will
// download it to, named by the md5 of its own content.
package manifest
