package merge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsget/hls-downloader/internal/crypto"
	"github.com/hlsget/hls-downloader/internal/httpx"
	"github.com/hlsget/hls-downloader/internal/model"
)

// copyRemuxer stands in for ffmpeg: it copies the scratch stream to the
// destination so tests can inspect the concatenated bytes.
type copyRemuxer struct{}

func (copyRemuxer) Remux(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// emptyRemuxer reports success while writing a zero-byte output.
type emptyRemuxer struct{}

func (emptyRemuxer) Remux(_ context.Context, _, dst string) error {
	return os.WriteFile(dst, nil, 0644)
}

func newTestAssembler(t *testing.T, remuxer Remuxer) (*Assembler, *model.Asset) {
	t.Helper()
	asset := model.NewAsset(filepath.Join(t.TempDir(), "movie"))
	require.NoError(t, os.MkdirAll(asset.WorkDir, 0755))

	client := httpx.NewClient(nil)
	t.Cleanup(client.Close)

	return &Assembler{
		Client:  client,
		Asset:   asset,
		Remuxer: remuxer,
		Log:     zerolog.Nop(),
	}, asset
}

func writeSegments(t *testing.T, asset *model.Asset, contents []string) []model.SegmentFile {
	t.Helper()
	files := make([]model.SegmentFile, len(contents))
	for i, content := range contents {
		path := asset.SegmentPath(i)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		files[i] = model.SegmentFile{Path: path, Decrypted: true}
	}
	return files
}

func TestAssemble_ConcatenatesInIndexOrder(t *testing.T) {
	assembler, asset := newTestAssembler(t, copyRemuxer{})
	files := writeSegments(t, asset, []string{"AAA", "BBB", "CCC", "DDD"})

	// Completion order of the fetches does not matter: the assembler
	// receives the index-ordered slice and must follow it.
	err := assembler.Assemble(context.Background(), nil, "", "", files)
	require.NoError(t, err)

	out, err := os.ReadFile(asset.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "AAABBBCCCDDD", string(out))

	_, err = os.Stat(asset.ScratchPath)
	assert.True(t, os.IsNotExist(err), "scratch must be deleted on success")
}

func TestAssemble_InitSegmentWrittenFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("HEAD"))
	}))
	defer server.Close()

	assembler, asset := newTestAssembler(t, copyRemuxer{})
	files := writeSegments(t, asset, []string{"AAA", "BBB"})

	err := assembler.Assemble(context.Background(), nil, server.URL+"/init.mp4", "head.mp4", files)
	require.NoError(t, err)

	out, err := os.ReadFile(asset.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "HEADAAABBB", string(out))

	head, err := os.ReadFile(asset.HeadPath("head.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "HEAD", string(head), "init segment persisted for resume/inspection")
}

func TestAssemble_DeferredDecryptionAppliedOnce(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	material := model.NewKeyMaterial(key, iv)

	plaintext := []byte("segment payload decrypted at merge time")
	ciphertext, err := crypto.CBCEncrypt(plaintext, key, iv)
	require.NoError(t, err)

	assembler, asset := newTestAssembler(t, copyRemuxer{})

	encPath := asset.SegmentPath(0)
	require.NoError(t, os.WriteFile(encPath, ciphertext, 0644))
	plainPath := asset.SegmentPath(1)
	require.NoError(t, os.WriteFile(plainPath, []byte("already plain"), 0644))

	files := []model.SegmentFile{
		{Path: encPath, Decrypted: false},
		{Path: plainPath, Decrypted: true}, // decrypted at fetch time, must not be touched again
	}

	err = assembler.Assemble(context.Background(), material, "", "", files)
	require.NoError(t, err)

	out, err := os.ReadFile(asset.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, string(plaintext)+"already plain", string(out))
}

func TestAssemble_ZeroByteOutputIsMergeFailure(t *testing.T) {
	assembler, asset := newTestAssembler(t, emptyRemuxer{})
	files := writeSegments(t, asset, []string{"AAA"})

	err := assembler.Assemble(context.Background(), nil, "", "", files)
	assert.ErrorIs(t, err, ErrEmptyOutput)

	_, statErr := os.Stat(asset.ScratchPath)
	assert.NoError(t, statErr, "scratch must be kept for diagnosis on failure")
}

func TestAssemble_StaleScratchTruncated(t *testing.T) {
	assembler, asset := newTestAssembler(t, copyRemuxer{})
	require.NoError(t, os.WriteFile(asset.ScratchPath, []byte("STALE"), 0644))

	files := writeSegments(t, asset, []string{"AAA"})
	err := assembler.Assemble(context.Background(), nil, "", "", files)
	require.NoError(t, err)

	out, err := os.ReadFile(asset.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "AAA", string(out), "stale scratch content must not leak into the output")
}
