package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// KeystreamCodec is a demonstration non-identity Codec: it derives a
// deterministic, page-number-keyed pseudorandom keystream from a BLAKE3
// extendable output and XORs it into the page. XOR is its own inverse
// and the keystream depends only on the key and the page number, so
// Decode(Encode(p, n, 0), n) == p for every page, and encoding never
// changes a page's length, which the fixed-size paged-I/O model
// requires.
//
// This is not a security primitive (there is no per-write nonce, so
// the same page number always masks with the same keystream), but it
// demonstrates the CodecProvider contract end to end without inventing
// a fake cryptography library.
type KeystreamCodec struct {
	key [32]byte
}

// NewKeystreamCodec builds a codec from a 32-byte key, the size
// required by BLAKE3's keyed mode.
func NewKeystreamCodec(key []byte) (*KeystreamCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("codec: keystream key must be 32 bytes, got %d", len(key))
	}
	kc := &KeystreamCodec{}
	copy(kc.key[:], key)
	return kc, nil
}

func (k *KeystreamCodec) keystream(pageNumber uint32, n int) ([]byte, error) {
	h, err := blake3.NewKeyed(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: keyed blake3: %w", err)
	}
	var pnBuf [4]byte
	binary.LittleEndian.PutUint32(pnBuf[:], pageNumber)
	if _, err := h.Write(pnBuf[:]); err != nil {
		return nil, fmt.Errorf("codec: hashing page number: %w", err)
	}

	out := make([]byte, n)
	if _, err := io.ReadFull(h.Digest(), out); err != nil {
		return nil, fmt.Errorf("codec: reading keystream: %w", err)
	}
	return out, nil
}

// Decode implements Codec.
func (k *KeystreamCodec) Decode(page []byte, pageNumber uint32) error {
	ks, err := k.keystream(pageNumber, len(page))
	if err != nil {
		return err
	}
	for i := range page {
		page[i] ^= ks[i]
	}
	return nil
}

// Encode implements Codec.
func (k *KeystreamCodec) Encode(page []byte, pageNumber uint32, pageOffset int64) ([]byte, error) {
	ks, err := k.keystream(pageNumber, len(page))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(page))
	for i := range page {
		out[i] = page[i] ^ ks[i]
	}
	return out, nil
}

// KeystreamProvider is a Provider that always returns a KeystreamCodec
// built from a fixed key. Real CodecProviders would derive the key from
// a passphrase or external key store; key material stays the provider's
// responsibility and is never interpreted here.
type KeystreamProvider struct {
	Key []byte
}

// CodecFor implements Provider.
func (p KeystreamProvider) CodecFor() (Codec, error) {
	return NewKeystreamCodec(p.Key)
}
