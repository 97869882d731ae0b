package crypto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsget/hls-downloader/internal/httpx"
)

func TestKeyResolver_FetchesKeyAndDefaultsIVToKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 bytes, no IV anywhere
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(key)
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()

	resolver := &KeyResolver{Client: client}
	km, err := resolver.Resolve(context.Background(), server.URL, "")
	require.NoError(t, err)

	assert.Equal(t, key, km.Key)
	assert.Equal(t, key, km.IV, "with no IV from any source the key itself is the IV")
}

func TestKeyResolver_CallerIVWinsOverManifestIV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789abcdef"))
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()

	resolver := &KeyResolver{
		Client:     client,
		OverrideIV: "0x61616161616161616161616161616161", // 16 * 'a'
	}
	km, err := resolver.Resolve(context.Background(), server.URL, "0x62626262626262626262626262626262")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaaaaaaaaaaaaaa"), km.IV)
}

func TestKeyResolver_OverrideKeySkipsFetch(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := httpx.NewClient(nil)
	defer client.Close()

	resolver := &KeyResolver{Client: client, OverrideKey: []byte("0123456789abcdef")}
	km, err := resolver.Resolve(context.Background(), server.URL, "")
	require.NoError(t, err)

	assert.Equal(t, []byte("0123456789abcdef"), km.Key)
	assert.Zero(t, atomic.LoadInt32(&hits), "override key must not trigger a key fetch")
}

func TestKeyResolver_MalformedManifestIVIsFatal(t *testing.T) {
	resolver := &KeyResolver{OverrideKey: []byte("0123456789abcdef")}
	_, err := resolver.Resolve(context.Background(), "", "0xnothex")
	assert.ErrorIs(t, err, ErrKeyValidation)
}
