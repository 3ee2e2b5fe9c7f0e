/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Restitutor/DiscordTZ/internal/crypto"
	"github.com/Restitutor/DiscordTZ/internal/wire"
)

// Ingress runs AEAD decrypt -> gunzip -> msgpack->JSON over body,
// applying only the stages named by flags, in that fixed order.
// aad is the exact 7-byte header bytes as received on the wire.
func Ingress(flags wire.Flags, key, body, aad []byte) ([]byte, error) {
	content := body

	if flags.Encrypted() {
		alg := crypto.AESGCM
		if flags.Has(wire.FlagChaChaPoly) {
			alg = crypto.ChaCha20Poly1305
		}
		plain, err := crypto.Decrypt(alg, key, content, aad)
		if err != nil {
			return nil, wrap(KindBadCrypto, err)
		}
		content = plain
	}

	if flags.Has(wire.FlagGunzip) {
		plain, err := gunzip(content)
		if err != nil {
			return nil, wrap(KindBadCompression, err)
		}
		content = plain
	}

	if flags.Has(wire.FlagMsgpack) {
		plain, err := msgpackToJSON(content)
		if err != nil {
			return nil, wrap(KindBadCodec, err)
		}
		content = plain
	} else if !json.Valid(content) {
		return nil, wrap(KindBadJSON, errBadJSON)
	}

	return content, nil
}

// Egress inverts Ingress: JSON (or msgpack) -> gzip -> AEAD encrypt,
// using a freshly sampled nonce and a freshly built header as AAD. The
// AAD header's contentLen is the sealed (post-encryption) body length,
// matching what a receiver rebuilds from the parsed on-wire packet,
// not the pre-encryption plaintext length.
func Egress(requestType byte, flags wire.Flags, key, jsonBody []byte) ([]byte, error) {
	content := jsonBody

	if flags.Has(wire.FlagMsgpack) {
		packed, err := jsonToMsgpack(content)
		if err != nil {
			return nil, wrap(KindBadCodec, err)
		}
		content = packed
	}

	if flags.Has(wire.FlagGunzip) {
		content = gzipBytes(content)
	}

	if flags.Encrypted() {
		alg := crypto.AESGCM
		if flags.Has(wire.FlagChaChaPoly) {
			alg = crypto.ChaCha20Poly1305
		}
		header := wire.HeaderFor(requestType, flags, crypto.SealedLen(len(content)))
		enc, err := crypto.Encrypt(alg, key, content, header[:])
		if err != nil {
			return nil, wrap(KindBadCrypto, err)
		}
		content = enc
	}

	return wire.Build(requestType, flags, content)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func gzipBytes(data []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func msgpackToJSON(data []byte) ([]byte, error) {
	r := bytes.NewReader(data)
	var v interface{}
	if err := msgpack.NewDecoder(r).Decode(&v); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errTrailingMsgpack
	}
	return json.Marshal(v)
}

var errTrailingMsgpack = errors.New("transform: trailing bytes after msgpack value")

func jsonToMsgpack(data []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return msgpack.Marshal(v)
}

var errBadJSON = jsonSentinelErr{}

type jsonSentinelErr struct{}

func (jsonSentinelErr) Error() string { return "transform: body is not valid JSON" }
