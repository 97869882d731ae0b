package model

// KeyMaterial holds the symmetric key and initialization vector used to
// decrypt segments.
//
// When no IV is available from any source the key bytes themselves are
// used as the IV. That is not a cryptographic best practice, but it
// matches the ad-hoc key schemes of many HLS origins and must be kept
// for compatibility. The CBC step consumes only the first block of the IV.
type KeyMaterial struct {
	Key []byte
	IV  []byte
}

// NewKeyMaterial builds KeyMaterial, falling back to the key bytes as IV
// when iv is empty.
func NewKeyMaterial(key, iv []byte) *KeyMaterial {
	if len(iv) == 0 {
		iv = key
	}
	return &KeyMaterial{Key: key, IV: iv}
}
