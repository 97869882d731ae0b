package manifest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"

	"github.com/hlsget/hls-downloader/internal/crypto"
	"github.com/hlsget/hls-downloader/internal/httpx"
	ioutils "github.com/hlsget/hls-downloader/internal/io"
	"github.com/hlsget/hls-downloader/internal/model"
)

// DefaultMaxVariantDepth bounds how many nested variant playlists the
// resolver follows. A well-formed asset needs one or two hops; the cap
// exists so a self-referencing manifest cannot loop forever.
const DefaultMaxVariantDepth = 8

var (
	// ErrMultipleInitSegments is returned when a media playlist declares
	// more than one distinct initialization segment. Unsupported input,
	// never retried.
	ErrMultipleInitSegments = errors.New("manifest declares more than one initialization segment")

	// ErrVariantDepthExceeded is returned when nested variant playlists
	// keep referring to further variant playlists past the depth cap.
	ErrVariantDepthExceeded = errors.New("nested variant playlists exceed maximum depth")
)

// Transform converts an arbitrary manifest response into manifest text.
// Callers set one when the manifest URL returns a wrapper payload rather
// than the raw playlist.
type Transform func(*httpx.Response) (string, error)

// Resolution is the flattened download plan for one asset.
type Resolution struct {
	// Segments is dense and 0-indexed, in final stream order.
	Segments []model.SegmentDescriptor

	// Key is the decryption material, nil for plaintext assets.
	Key *model.KeyMaterial

	// InitSegmentURL is the absolute URI of the initialization segment,
	// empty when the asset has none.
	InitSegmentURL string

	// HeadFile is the local filename the init segment was rewritten to.
	HeadFile string

	// ManifestSum is the hex md5 of the normalized manifest copy.
	ManifestSum string
}

// Resolver turns a manifest URL into a Resolution.
//
// As side effects it persists the raw key bytes under the asset's key
// file and a normalized manifest copy (every segment, key and init
// segment URI rewritten to its local filename) under a content-hash
// name, so a rerun over identical content is auditable and idempotent.
// The asset working directory must exist before Resolve is called.
type Resolver struct {
	Client    *httpx.Client
	Keys      *crypto.KeyResolver
	Asset     *model.Asset
	Log       zerolog.Logger
	Transform Transform
	MaxDepth  int
}

// Resolve fetches and flattens the manifest at rawURL. Multi-variant
// manifests are followed by selecting the highest declared bandwidth
// (first maximum wins on ties) until a media playlist is reached.
// Network and parse errors propagate without retry; the orchestrator
// owns retries at pipeline granularity.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxVariantDepth
	}

	current := rawURL
	for depth := 0; depth < maxDepth; depth++ {
		base, err := url.Parse(current)
		if err != nil {
			return nil, fmt.Errorf("parse manifest url %q: %w", current, err)
		}

		resp, err := r.Client.Get(ctx, httpx.TrafficManifest, current, nil)
		if err != nil {
			return nil, err
		}

		text := resp.Text()
		if r.Transform != nil {
			text, err = r.Transform(resp)
			if err != nil {
				return nil, fmt.Errorf("manifest transform: %w", err)
			}
		}

		// The parser collapses repeated EXT-X-MAP declarations, so the
		// unsupported multi-map shape is detected on the raw text,
		// before any segment download can start.
		if uris := scanMapURIs(text); len(uris) > 1 {
			return nil, ErrMultipleInitSegments
		}

		playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), true)
		if err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", current, err)
		}

		switch listType {
		case m3u8.MASTER:
			next, bandwidth, err := pickVariant(base, playlist.(*m3u8.MasterPlaylist))
			if err != nil {
				return nil, err
			}
			r.Log.Info().
				Str("uri", next).
				Uint32("bandwidth", bandwidth).
				Msg("selected highest-bandwidth variant")
			current = next

		case m3u8.MEDIA:
			return r.resolveMedia(ctx, base, playlist.(*m3u8.MediaPlaylist))

		default:
			return nil, fmt.Errorf("unrecognized playlist type for %s", current)
		}
	}

	return nil, fmt.Errorf("%w (%d)", ErrVariantDepthExceeded, maxDepth)
}

// pickVariant returns the absolute URI of the variant with the strictly
// largest bandwidth. Duplicate maxima keep the first seen.
func pickVariant(base *url.URL, master *m3u8.MasterPlaylist) (string, uint32, error) {
	var best *m3u8.Variant
	var bestBandwidth uint32

	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if v.Bandwidth > bestBandwidth {
			bestBandwidth = v.Bandwidth
			best = v
		}
	}
	if best == nil {
		return "", 0, errors.New("master playlist has no variants")
	}

	abs, err := absoluteURL(base, best.URI)
	if err != nil {
		return "", 0, err
	}
	return abs, bestBandwidth, nil
}

func (r *Resolver) resolveMedia(ctx context.Context, base *url.URL, media *m3u8.MediaPlaylist) (*Resolution, error) {
	res := &Resolution{}

	if err := r.captureInitSegment(base, media, res); err != nil {
		return nil, err
	}

	// First declared key wins; the playlist-level key and the first
	// segment's key are the same declaration in common manifests.
	manifestKey := media.Key

	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if manifestKey == nil && seg.Key != nil {
			manifestKey = seg.Key
		}

		abs, err := absoluteURL(base, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("segment %d uri %q: %w", len(res.Segments), seg.URI, err)
		}

		index := len(res.Segments)
		seg.URI = fmt.Sprintf("%d.ts", index)
		res.Segments = append(res.Segments, model.SegmentDescriptor{Index: index, URI: abs})
	}

	if err := r.resolveKey(ctx, base, media, manifestKey, res); err != nil {
		return nil, err
	}

	if err := r.exportNormalized(media, res); err != nil {
		return nil, err
	}

	r.Log.Info().
		Int("segments", len(res.Segments)).
		Bool("encrypted", res.Key != nil).
		Str("manifest", res.ManifestSum).
		Msg("manifest resolved")

	return res, nil
}

// captureInitSegment records the single EXT-X-MAP reference and rewrites
// it to a local filename. More than one distinct map URI is an
// unsupported format variant and fails fast.
func (r *Resolver) captureInitSegment(base *url.URL, media *m3u8.MediaPlaylist, res *Resolution) error {
	maps := make([]*m3u8.Map, 0, 1)
	seen := make(map[string]bool)

	add := func(m *m3u8.Map) {
		if m != nil && m.URI != "" && !seen[m.URI] {
			seen[m.URI] = true
			maps = append(maps, m)
		}
	}

	add(media.Map)
	for _, seg := range media.Segments {
		if seg != nil {
			add(seg.Map)
		}
	}

	if len(maps) == 0 {
		return nil
	}
	if len(maps) > 1 {
		return ErrMultipleInitSegments
	}

	abs, err := absoluteURL(base, maps[0].URI)
	if err != nil {
		return fmt.Errorf("init segment uri %q: %w", maps[0].URI, err)
	}

	res.InitSegmentURL = abs
	res.HeadFile = model.HeadFileName(abs)

	local := res.HeadFile
	if media.Map != nil {
		media.Map.URI = local
	}
	for _, seg := range media.Segments {
		if seg != nil && seg.Map != nil {
			seg.Map.URI = local
		}
	}
	return nil
}

// resolveKey delegates to the key resolver, persists the raw key bytes
// for resume/inspection and rewrites the playlist's key references to
// the local key file.
func (r *Resolver) resolveKey(ctx context.Context, base *url.URL, media *m3u8.MediaPlaylist, key *m3u8.Key, res *Resolution) error {
	if key == nil || key.URI == "" || strings.EqualFold(key.Method, "NONE") {
		return nil
	}

	absKey, err := absoluteURL(base, key.URI)
	if err != nil {
		return fmt.Errorf("key uri %q: %w", key.URI, err)
	}

	material, err := r.Keys.Resolve(ctx, absKey, key.IV)
	if err != nil {
		return err
	}
	res.Key = material

	if err := ioutils.WriteFile(r.Asset.KeyPath, material.Key); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}

	remote := key.URI
	key.URI = model.KeyFileName
	if media.Key != nil && media.Key.URI == remote {
		media.Key.URI = model.KeyFileName
	}
	for _, seg := range media.Segments {
		if seg != nil && seg.Key != nil && seg.Key.URI == remote {
			seg.Key.URI = model.KeyFileName
		}
	}
	return nil
}

// exportNormalized serializes the mutated playlist and persists it under
// a name derived from its own content hash.
func (r *Resolver) exportNormalized(media *m3u8.MediaPlaylist, res *Resolution) error {
	text := media.Encode().Bytes()
	sum := md5.Sum(text)
	res.ManifestSum = hex.EncodeToString(sum[:])

	if err := ioutils.WriteFile(r.Asset.ManifestPath(res.ManifestSum), text); err != nil {
		return fmt.Errorf("persist normalized manifest: %w", err)
	}
	return nil
}

var mapURIPattern = regexp.MustCompile(`#EXT-X-MAP:.*?URI="([^"]+)"`)

// scanMapURIs returns the distinct initialization segment URIs declared
// in the manifest text.
func scanMapURIs(text string) []string {
	seen := make(map[string]bool)
	var uris []string
	for _, match := range mapURIPattern.FindAllStringSubmatch(text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			uris = append(uris, match[1])
		}
	}
	return uris
}

func absoluteURL(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}
