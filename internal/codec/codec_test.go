package codec

import (
	"bytes"
	"testing"
)

func pageFixture(n int, fill byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = fill + byte(i)
	}
	return p
}

func TestIdentityCodecSymmetry(t *testing.T) {
	c := Identity{}
	page := pageFixture(4096, 0x10)

	encoded, err := c.Encode(page, 7, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := c.Decode(encoded, 7); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(encoded, page) {
		t.Fatalf("identity codec must round-trip byte for byte")
	}
}

func TestIdentityCodecDoesNotMutateInput(t *testing.T) {
	c := Identity{}
	page := pageFixture(16, 1)
	original := append([]byte(nil), page...)

	if _, err := c.Encode(page, 1, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(page, original) {
		t.Fatalf("Encode must not mutate its input")
	}
}

func TestKeystreamCodecSymmetry(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewKeystreamCodec(key)
	if err != nil {
		t.Fatalf("NewKeystreamCodec: %v", err)
	}

	for _, pageNum := range []uint32{0, 1, 4096, 0xFFFFFFFF} {
		page := pageFixture(4096, byte(pageNum))
		original := append([]byte(nil), page...)

		encoded, err := c.Encode(page, pageNum, 0)
		if err != nil {
			t.Fatalf("Encode(%d): %v", pageNum, err)
		}
		if bytes.Equal(encoded, original) {
			t.Fatalf("page %d: keystream codec should change the bytes", pageNum)
		}
		if len(encoded) != len(original) {
			t.Fatalf("page %d: codec must preserve page length", pageNum)
		}

		if err := c.Decode(encoded, pageNum); err != nil {
			t.Fatalf("Decode(%d): %v", pageNum, err)
		}
		if !bytes.Equal(encoded, original) {
			t.Fatalf("page %d: decode(encode(p)) != p", pageNum)
		}
	}
}

func TestKeystreamCodecDiffersByPageNumber(t *testing.T) {
	key := make([]byte, 32)
	c, _ := NewKeystreamCodec(key)
	page := pageFixture(64, 5)

	e1, _ := c.Encode(page, 1, 0)
	e2, _ := c.Encode(page, 2, 0)
	if bytes.Equal(e1, e2) {
		t.Fatalf("encoding the same page content under different page numbers should differ")
	}
}

func TestNewKeystreamCodecRejectsBadKeySize(t *testing.T) {
	if _, err := NewKeystreamCodec(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for non-32-byte key")
	}
}
