package crypto

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hlsget/hls-downloader/internal/httpx"
	"github.com/hlsget/hls-downloader/internal/model"
)

// ErrKeyValidation marks malformed key material. The orchestrator treats
// it as fatal: retrying cannot fix a bad IV.
var ErrKeyValidation = errors.New("invalid key material")

// ParseIV normalizes an initialization vector given as text. Accepted
// forms, in order of preference:
//
//   - hex with an optional "0x" prefix, decoding to exactly 16 bytes
//   - 16 raw bytes used verbatim
//
// Anything else is a validation error; the run must fail rather than
// decrypt with a guessed IV.
func ParseIV(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty iv", ErrKeyValidation)
	}

	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed != s {
		iv, err := hex.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: iv %q: %v", ErrKeyValidation, s, err)
		}
		if len(iv) != 16 {
			return nil, fmt.Errorf("%w: iv %q decodes to %d bytes, want 16", ErrKeyValidation, s, len(iv))
		}
		return iv, nil
	}

	if iv, err := hex.DecodeString(s); err == nil && len(iv) == 16 {
		return iv, nil
	}
	if len(s) == 16 {
		return []byte(s), nil
	}

	return nil, fmt.Errorf("%w: iv %q is neither 16 raw bytes nor 16 hex-encoded bytes", ErrKeyValidation, s)
}

// KeyResolver produces the KeyMaterial for one run, either from the
// manifest's key URI or from a caller-supplied override.
type KeyResolver struct {
	// Client fetches the key when no override is given.
	Client *httpx.Client

	// OverrideKey, when set, is used instead of fetching the key URI.
	OverrideKey []byte

	// OverrideIV, when set, wins over any manifest-declared IV.
	OverrideIV string
}

// Resolve returns the normalized key and IV. IV precedence is caller
// override, then manifest declaration, then the key bytes themselves.
func (r *KeyResolver) Resolve(ctx context.Context, keyURI, manifestIV string) (*model.KeyMaterial, error) {
	key := r.OverrideKey
	if key == nil {
		resp, err := r.Client.Get(ctx, httpx.TrafficKey, keyURI, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch key %s: %w", keyURI, err)
		}
		key = resp.Body
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("key %s resolved to zero bytes", keyURI)
	}

	ivText := r.OverrideIV
	if ivText == "" {
		ivText = manifestIV
	}

	var iv []byte
	if ivText != "" {
		parsed, err := ParseIV(ivText)
		if err != nil {
			return nil, err
		}
		iv = parsed
	}

	return model.NewKeyMaterial(key, iv), nil
}
