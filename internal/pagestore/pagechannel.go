// Package pagestore implements page-sized buffered I/O over a byte
// channel (C3), the codec hook applied on every read/write (C4's call
// site), and the family of reusable buffer holders (C6) that the row,
// index, and usage-map layers borrow scratch pages from.
package pagestore

import (
	"encoding/binary"
	"fmt"

	"github.com/ambermdb/jetcore/internal/codec"
	"github.com/ambermdb/jetcore/internal/ioutil"
)

// PageChannel wraps a ByteChannel with page-sized reads/writes and an
// optional page codec. It is the sole point of contact between every
// higher layer (usage maps, row/data pages, index nodes) and raw bytes.
type PageChannel struct {
	channel  ioutil.ByteChannel
	codec    codec.Codec
	pageSize int
	guard    *WriteGuard
}

// New wraps channel with the given page size and codec. A nil codec
// defaults to codec.Identity{}.
func New(channel ioutil.ByteChannel, pageSize int, c codec.Codec) *PageChannel {
	if c == nil {
		c = codec.Identity{}
	}
	return &PageChannel{
		channel:  channel,
		codec:    c,
		pageSize: pageSize,
		guard:    NewWriteGuard(),
	}
}

// PageSize returns the fixed page size this channel was built with.
func (pc *PageChannel) PageSize() int { return pc.pageSize }

// PageCount returns the number of complete pages currently in the
// channel.
func (pc *PageChannel) PageCount() (uint32, error) {
	size, err := pc.channel.Size()
	if err != nil {
		return 0, fmt.Errorf("pagestore: size: %w", err)
	}
	return uint32(size / int64(pc.pageSize)), nil
}

// ReadPage fills buf (which must be exactly PageSize() long) with the
// decoded contents of page pageNumber.
func (pc *PageChannel) ReadPage(buf []byte, pageNumber uint32) error {
	if len(buf) != pc.pageSize {
		return fmt.Errorf("pagestore: read buffer is %d bytes, want %d", len(buf), pc.pageSize)
	}
	pos := int64(pageNumber) * int64(pc.pageSize)
	if err := pc.channel.ReadAt(pos, buf); err != nil {
		return fmt.Errorf("pagestore: read page %d: %w", pageNumber, err)
	}
	if err := pc.codec.Decode(buf, pageNumber); err != nil {
		return fmt.Errorf("pagestore: decode page %d: %w", pageNumber, err)
	}
	return nil
}

// WritePage encodes buf (exactly PageSize() long) and writes it at
// pageNumber. buf is never mutated.
func (pc *PageChannel) WritePage(buf []byte, pageNumber uint32) error {
	if len(buf) != pc.pageSize {
		return fmt.Errorf("pagestore: write buffer is %d bytes, want %d", len(buf), pc.pageSize)
	}
	pos := int64(pageNumber) * int64(pc.pageSize)
	encoded, err := pc.codec.Encode(buf, pageNumber, pos)
	if err != nil {
		return fmt.Errorf("pagestore: encode page %d: %w", pageNumber, err)
	}
	if len(encoded) != pc.pageSize {
		// A codec that changes page length violates the fixed-size paged
		// I/O model. Not recoverable: the handle must stop writing.
		panic(fmt.Sprintf("pagestore: codec produced a %d-byte page, want %d", len(encoded), pc.pageSize))
	}
	if err := pc.channel.WriteAt(pos, encoded); err != nil {
		return fmt.Errorf("pagestore: write page %d: %w", pageNumber, err)
	}
	return nil
}

// AllocateNewPage extends the channel by one zero-filled page and
// returns its number. The length change and the zero-fill are only
// ever observable together: no other reader sees a partially-extended
// channel.
func (pc *PageChannel) AllocateNewPage() (uint32, error) {
	size, err := pc.channel.Size()
	if err != nil {
		return 0, fmt.Errorf("pagestore: size: %w", err)
	}
	pageNumber := uint32(size / int64(pc.pageSize))
	zero := make([]byte, pc.pageSize)
	if err := pc.channel.WriteAt(size, zero); err != nil {
		return 0, fmt.Errorf("pagestore: allocate page %d: %w", pageNumber, err)
	}
	return pageNumber, nil
}

// CreatePageBuffer allocates a zeroed, page-sized scratch buffer.
func (pc *PageChannel) CreatePageBuffer() []byte {
	return make([]byte, pc.pageSize)
}

// CreateBuffer allocates a zeroed buffer of the given size. Go slices
// carry no byte-order state; every reader and writer of the buffer is
// expected to go through ByteOrder, defined below, rather than assume
// host order.
func (pc *PageChannel) CreateBuffer(size int) []byte {
	return make([]byte, size)
}

// ByteOrder is the byte order used for every multi-byte field in the
// on-disk format.
var ByteOrder = binary.LittleEndian

// StartWrite begins a scoped, reference-counted write-guard
// acquisition. The page channel may batch/defer durability until the
// matching FinishWrite. Nesting is permitted; callers must balance every
// StartWrite with exactly one FinishWrite.
func (pc *PageChannel) StartWrite() { pc.guard.Acquire() }

// FinishWrite releases one level of write-guard acquisition.
func (pc *PageChannel) FinishWrite() { pc.guard.Release() }

// InWrite reports whether a write guard is currently held.
func (pc *PageChannel) InWrite() bool { return pc.guard.Depth() > 0 }

// Flush pushes completed writes to stable storage when the underlying
// channel needs an explicit push; in-memory channels are durable as
// soon as WriteAt returns.
func (pc *PageChannel) Flush() error {
	if fl, ok := pc.channel.(ioutil.Flusher); ok {
		return fl.Flush()
	}
	return nil
}

// Close releases the underlying byte channel.
func (pc *PageChannel) Close() error { return pc.channel.Close() }
