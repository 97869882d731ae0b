package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsget/hls-downloader/internal/crypto"
	"github.com/hlsget/hls-downloader/internal/httpx"
	"github.com/hlsget/hls-downloader/internal/model"
)

const flatManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:9.000,
seg-000.ts
#EXTINF:9.000,
seg-001.ts
#EXTINF:9.000,
http://other.example.com/abs/seg-002.ts
#EXT-X-ENDLIST
`

func newTestResolver(t *testing.T, client *httpx.Client) (*Resolver, *model.Asset) {
	t.Helper()
	asset := model.NewAsset(filepath.Join(t.TempDir(), "movie"))
	require.NoError(t, os.MkdirAll(asset.WorkDir, 0755))
	return &Resolver{
		Client: client,
		Keys:   &crypto.KeyResolver{Client: client},
		Asset:  asset,
		Log:    zerolog.Nop(),
	}, asset
}

func TestResolve_FlatManifestDenseIndices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flatManifest))
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, asset := newTestResolver(t, client)

	res, err := resolver.Resolve(context.Background(), server.URL+"/video/index.m3u8")
	require.NoError(t, err)

	require.Len(t, res.Segments, 3)
	for i, seg := range res.Segments {
		assert.Equal(t, i, seg.Index, "indices must be dense and 0-based")
	}
	assert.Equal(t, server.URL+"/video/seg-000.ts", res.Segments[0].URI)
	assert.Equal(t, server.URL+"/video/seg-001.ts", res.Segments[1].URI)
	assert.Equal(t, "http://other.example.com/abs/seg-002.ts", res.Segments[2].URI,
		"already-absolute URIs are kept as is")
	assert.Nil(t, res.Key)
	assert.Empty(t, res.InitSegmentURL)

	// The normalized copy references local filenames.
	data, err := os.ReadFile(asset.ManifestPath(res.ManifestSum))
	require.NoError(t, err)
	assert.Contains(t, string(data), "0.ts")
	assert.Contains(t, string(data), "2.ts")
	assert.NotContains(t, string(data), "seg-000.ts")
}

func TestResolve_PicksHighestBandwidthVariantOnce(t *testing.T) {
	var lowHits, midHits, hdHits int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	master := `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=500
low/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1500
hd/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1000
mid/index.m3u8
`
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(master))
	})
	mux.HandleFunc("/low/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&lowHits, 1)
		w.Write([]byte(flatManifest))
	})
	mux.HandleFunc("/mid/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&midHits, 1)
		w.Write([]byte(flatManifest))
	})
	mux.HandleFunc("/hd/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hdHits, 1)
		w.Write([]byte(flatManifest))
	})

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, _ := newTestResolver(t, client)

	res, err := resolver.Resolve(context.Background(), server.URL+"/master.m3u8")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hdHits), "1500 variant fetched exactly once")
	assert.Zero(t, atomic.LoadInt32(&lowHits))
	assert.Zero(t, atomic.LoadInt32(&midHits))
	assert.Equal(t, server.URL+"/hd/seg-000.ts", res.Segments[0].URI,
		"segment URIs resolve against the selected variant, not the master")
}

func TestResolve_DuplicateMaxBandwidthKeepsFirst(t *testing.T) {
	var firstHits, secondHits, midHits int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	master := `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1500
first/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1500
second/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1000
mid/index.m3u8
`
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(master))
	})
	mux.HandleFunc("/first/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&firstHits, 1)
		w.Write([]byte(flatManifest))
	})
	mux.HandleFunc("/second/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondHits, 1)
		w.Write([]byte(flatManifest))
	})
	mux.HandleFunc("/mid/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&midHits, 1)
		w.Write([]byte(flatManifest))
	})

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, _ := newTestResolver(t, client)

	res, err := resolver.Resolve(context.Background(), server.URL+"/master.m3u8")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&firstHits), "first of the tied maxima wins")
	assert.Zero(t, atomic.LoadInt32(&secondHits))
	assert.Zero(t, atomic.LoadInt32(&midHits))
	assert.Equal(t, server.URL+"/first/seg-000.ts", res.Segments[0].URI)
}

func TestResolve_VariantDepthCap(t *testing.T) {
	// A master playlist referring to itself must hit the depth cap
	// instead of looping forever.
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1000
self.m3u8
`))
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, _ := newTestResolver(t, client)
	resolver.MaxDepth = 3

	_, err := resolver.Resolve(context.Background(), server.URL+"/self.m3u8")
	assert.ErrorIs(t, err, ErrVariantDepthExceeded)
}

func TestResolve_MultipleInitSegmentsFailFast(t *testing.T) {
	var segmentHits int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-MAP:URI="init-a.mp4"
#EXTINF:9.000,
seg-000.ts
#EXT-X-MAP:URI="init-b.mp4"
#EXTINF:9.000,
seg-001.ts
#EXT-X-ENDLIST
`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&segmentHits, 1)
	})

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, _ := newTestResolver(t, client)

	_, err := resolver.Resolve(context.Background(), server.URL+"/index.m3u8")
	assert.ErrorIs(t, err, ErrMultipleInitSegments)
	assert.Zero(t, atomic.LoadInt32(&segmentHits), "no media fetch may happen before the failure")
}

func TestResolve_SingleInitSegmentRewritten(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`#EXTM3U
#EXT-X-VERSION:6
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-MAP:URI="init.mp4"
#EXTINF:9.000,
seg-000.ts
#EXT-X-ENDLIST
`))
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, asset := newTestResolver(t, client)

	res, err := resolver.Resolve(context.Background(), server.URL+"/video/index.m3u8")
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/video/init.mp4", res.InitSegmentURL)
	assert.Equal(t, "head.mp4", res.HeadFile)

	data, err := os.ReadFile(asset.ManifestPath(res.ManifestSum))
	require.NoError(t, err)
	assert.Contains(t, string(data), `URI="head.mp4"`)
	assert.NotContains(t, string(data), "init.mp4")
}

func TestResolve_KeyFetchedPersistedAndRewritten(t *testing.T) {
	keyBytes := []byte("0123456789abcdef")
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/video/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0x30313233343536373839616263646566
#EXTINF:9.000,
seg-000.ts
#EXT-X-ENDLIST
`))
	})
	mux.HandleFunc("/video/key.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write(keyBytes)
	})

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, asset := newTestResolver(t, client)

	res, err := resolver.Resolve(context.Background(), server.URL+"/video/index.m3u8")
	require.NoError(t, err)

	require.NotNil(t, res.Key)
	assert.Equal(t, keyBytes, res.Key.Key)
	assert.Equal(t, []byte("0123456789abcdef"), res.Key.IV, "manifest IV decodes from hex")

	persisted, err := os.ReadFile(asset.KeyPath)
	require.NoError(t, err)
	assert.Equal(t, keyBytes, persisted)

	data, err := os.ReadFile(asset.ManifestPath(res.ManifestSum))
	require.NoError(t, err)
	assert.Contains(t, string(data), `URI="key.key"`)
	assert.NotContains(t, string(data), "key.bin")
}

func TestResolve_TransformHookUnwrapsPayload(t *testing.T) {
	wrapped := "PAYLOAD:" + flatManifest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wrapped))
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()
	resolver, _ := newTestResolver(t, client)
	resolver.Transform = func(resp *httpx.Response) (string, error) {
		return strings.TrimPrefix(resp.Text(), "PAYLOAD:"), nil
	}

	res, err := resolver.Resolve(context.Background(), server.URL+"/video/index.m3u8")
	require.NoError(t, err)
	assert.Len(t, res.Segments, 3)
}
