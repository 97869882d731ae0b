package download

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/hlsget/hls-downloader/internal/crypto"
	"github.com/hlsget/hls-downloader/internal/httpx"
	ioutils "github.com/hlsget/hls-downloader/internal/io"
	"github.com/hlsget/hls-downloader/internal/model"
)

// Fetcher downloads one segment to its per-index file.
//
// A segment file that already exists on disk is reported immediately
// without network access, which is what makes interrupted runs
// resumable. An empty response body yields ok=false with a nil error:
// the slot stays unfilled and the orchestrator's verify step treats it
// as a shortfall.
type Fetcher struct {
	Client *httpx.Client
	Asset  *model.Asset
	Key    *model.KeyMaterial
	// Decrypt applies the key at fetch time so plaintext lands on disk.
	Decrypt bool
	Log     zerolog.Logger
}

// Fetch downloads the segment, optionally decrypts it and writes it in a
// single all-or-nothing operation. ok is false when the segment produced
// no bytes.
func (f *Fetcher) Fetch(ctx context.Context, seg model.SegmentDescriptor) (model.SegmentFile, bool, error) {
	path := f.Asset.SegmentPath(seg.Index)

	// Resume: a file on disk is a completed download from this or an
	// earlier run. Whether it holds plaintext is read from the marker
	// written alongside it, never from the current settings: a ciphertext
	// file left by a run without decryption must still be decrypted at
	// merge time regardless of how this run is configured.
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		fi := model.SegmentFile{
			Path:      path,
			Size:      info.Size(),
			Decrypted: ioutils.IsRegularFile(f.Asset.DecryptedMarkerPath(seg.Index)),
		}
		f.Log.Debug().Int("index", seg.Index).Msg("segment already on disk")
		return fi, true, nil
	}

	resp, err := f.Client.Get(ctx, httpx.TrafficSegment, seg.URI, nil)
	if err != nil {
		return model.SegmentFile{}, false, err
	}

	data := resp.Body
	if len(data) == 0 {
		f.Log.Warn().Int("index", seg.Index).Str("uri", seg.URI).Msg("segment returned no content")
		return model.SegmentFile{}, false, nil
	}

	decrypted := false
	if f.Key != nil && f.Decrypt {
		data, err = crypto.CBCDecrypt(data, f.Key.Key, f.Key.IV)
		if err != nil {
			return model.SegmentFile{}, false, err
		}
		decrypted = true
	}

	if err := ioutils.WriteFile(path, data); err != nil {
		return model.SegmentFile{}, false, err
	}

	// The marker follows the data write; a crash in between leaves a
	// ciphertext-looking file without a marker, which resumes safely.
	if decrypted {
		if err := ioutils.WriteFile(f.Asset.DecryptedMarkerPath(seg.Index), nil); err != nil {
			return model.SegmentFile{}, false, err
		}
	}

	f.Log.Debug().Int("index", seg.Index).Int("bytes", len(data)).Msg("segment downloaded")
	return model.SegmentFile{Path: path, Size: int64(len(data)), Decrypted: decrypted}, true, nil
}
