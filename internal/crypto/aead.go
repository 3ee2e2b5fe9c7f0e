/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package crypto implements the AEAD primitives the wire protocol needs
// (AES-256-GCM, ChaCha20-Poly1305) and the vault's AES-CBC envelope.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	NonceLen = 12
	// TagLen is the authentication tag size both AES-GCM's default tag
	// and ChaCha20-Poly1305's Poly1305 tag produce; both AEADs this
	// package supports share it, so callers can size a sealed output
	// without constructing an AEAD first.
	TagLen = 16
)

var (
	ErrShortBody  = errors.New("crypto: body shorter than nonce")
	ErrBadKeyLen  = errors.New("crypto: key must be 32 bytes")
	ErrAuthFailed = errors.New("crypto: AEAD authentication failed")
)

// Algorithm selects which AEAD construction to use; it mirrors the two
// mutually-exclusive flag bits of the wire protocol.
type Algorithm int

const (
	AESGCM Algorithm = iota
	ChaCha20Poly1305
)

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrBadKeyLen
	}
	switch alg {
	case AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, errors.New("crypto: unknown algorithm")
	}
}

// Decrypt splits body into nonce||ciphertext+tag, verifies and decrypts
// it against aad (the 7-byte wire header). A tag failure surfaces as
// ErrAuthFailed with no plaintext returned, per the
// no-body-leak requirement.
func Decrypt(alg Algorithm, key, body, aad []byte) ([]byte, error) {
	if len(body) < NonceLen {
		return nil, ErrShortBody
	}
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := body[:NonceLen], body[NonceLen:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// SealedLen returns the on-wire length of Encrypt's output for a
// plaintext of plainLen bytes: nonce || ciphertext || tag.
func SealedLen(plainLen int) int {
	return NonceLen + plainLen + TagLen
}

// Encrypt samples a fresh nonce and seals plaintext against aad,
// returning nonce||ciphertext+tag.
func Encrypt(alg Algorithm, key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := aead.Seal(nonce, nonce, plaintext, aad)
	return out, nil
}
