// Package crypto implements the symmetric decryption used for encrypted
// HLS segments: AES in CBC mode with PKCS#7 padding, plus IV parsing and
// key resolution.
//
// Key length picks the AES variant (16, 24 or 32 bytes). When no IV is
// declared by the manifest or the caller, the key bytes themselves serve
// as the IV, a compatibility behavior of common ad-hoc HLS key schemes.
package crypto
