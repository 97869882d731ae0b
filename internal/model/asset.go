package model

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// KeyFileName is the fixed name of the decryption key persisted to the
// working directory.
const KeyFileName = "key.key"

// Asset describes the on-disk layout for one HLS download.
//
// All paths are computed once from the caller's save path. Given a save
// path of "/videos/movie", the layout is:
//
//	/videos/movie/hls/        working directory (segments, key, manifest, head)
//	/videos/movie/hls/0.ts    per-segment files, dense 0-based index
//	/videos/movie/hls/key.key raw decryption key, if the manifest declares one
//	/videos/movie.ts          scratch concatenation, deleted after a successful merge
//	/videos/movie.mp4         final container
//	/videos/movie.log         structured log for this asset
//
// Files in the working directory are resumable state: a segment file that
// already exists is treated as downloaded and is never re-fetched.
type Asset struct {
	// SavePath is the caller-supplied output path without extension.
	SavePath string

	// Name is the final path element of SavePath, used in log lines.
	Name string

	// WorkDir holds segments, the key, the normalized manifest and the
	// init segment for this asset.
	WorkDir string

	// OutputPath is the final MP4 container path.
	OutputPath string

	// ScratchPath is the raw concatenated stream fed to the remuxer.
	ScratchPath string

	// LogPath is the per-asset log file.
	LogPath string

	// KeyPath is where raw key bytes are persisted for inspection/resume.
	KeyPath string
}

// NewAsset computes the full path set for a save path.
func NewAsset(savePath string) *Asset {
	workDir := filepath.Join(savePath, "hls")
	return &Asset{
		SavePath:    savePath,
		Name:        filepath.Base(savePath),
		WorkDir:     workDir,
		OutputPath:  savePath + ".mp4",
		ScratchPath: savePath + ".ts",
		LogPath:     savePath + ".log",
		KeyPath:     filepath.Join(workDir, KeyFileName),
	}
}

// SegmentPath returns the local file path for the segment at index.
func (a *Asset) SegmentPath(index int) string {
	return filepath.Join(a.WorkDir, fmt.Sprintf("%d.ts", index))
}

// DecryptedMarkerPath returns the path of the marker recording that the
// segment at index was persisted as plaintext. The marker, not the
// current configuration, is what decides whether a resumed file still
// needs decryption at merge time.
func (a *Asset) DecryptedMarkerPath(index int) string {
	return a.SegmentPath(index) + ".dec"
}

// ManifestPath returns the path of the normalized manifest copy, named
// after the hex digest of its rewritten content so reruns with identical
// content land on the same file.
func (a *Asset) ManifestPath(sum string) string {
	return filepath.Join(a.WorkDir, sum+".m3u8")
}

// HeadFileName returns the local filename for an initialization segment,
// keeping the extension of the remote URI's path (query and fragment
// ignored). Defaults to ".mp4" when the URI has no extension.
func HeadFileName(uri string) string {
	name := uri
	if u, err := url.Parse(uri); err == nil {
		name = u.Path
	}
	ext := path.Ext(name)
	if ext == "" {
		ext = ".mp4"
	}
	return "head" + ext
}

// HeadPath returns the working-directory path for the given init segment
// filename.
func (a *Asset) HeadPath(name string) string {
	return filepath.Join(a.WorkDir, name)
}

// SavePathFor derives a local save path (no extension) from a manifest
// URL: the last path element with its extension dropped, or "asset" when
// the URL yields nothing usable.
func SavePathFor(manifestURL string) string {
	name := "asset"
	if u, err := url.Parse(manifestURL); err == nil {
		base := path.Base(u.Path)
		base = strings.TrimSuffix(base, path.Ext(base))
		if base != "" && base != "." && base != "/" {
			name = base
		}
	}
	return filepath.Join(".", name)
}
