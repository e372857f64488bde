package rowdata

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/pagestore"
)

// Long-value descriptor: 12 bytes stored in the row's variable slot.
//
//	bytes 0-3   content length; the high bit set means the content is
//	            inline, immediately following the descriptor
//	bytes 4-7   first LONG_VALUE page of the external chain (inline: 0)
//	bytes 8-11  reserved, zero
//
// LONG_VALUE page: the type byte, three unused bytes, a 4-byte next-page
// link (0 terminates the chain), a 4-byte segment length, then content.
const (
	lvDescriptorSize = 12
	lvInlineFlag     = 0x80000000

	lvPageHeaderSize = 12
	lvOffsetNext     = 4
	lvOffsetSegLen   = 8

	// InlineThreshold is the content size at which a long value moves
	// off the row and onto its own page chain.
	InlineThreshold = 64
)

// LongValueStore reads and writes long-value page chains for one
// table's MEMO/OLE content. Its scratch page buffer is soft-retained:
// the GC may reclaim it between operations and the next use reallocates
// it.
type LongValueStore struct {
	channel *pagestore.PageChannel
	f       *jetformat.Format
	scratch pagestore.BufferHolder
}

// NewLongValueStore binds a store to its page channel.
func NewLongValueStore(channel *pagestore.PageChannel, f *jetformat.Format) *LongValueStore {
	return &LongValueStore{
		channel: channel,
		f:       f,
		scratch: pagestore.NewSoftBufferHolder(channel.PageSize()),
	}
}

func (s *LongValueStore) segmentCapacity() int {
	return s.channel.PageSize() - lvPageHeaderSize
}

// Store encodes content as a long-value slot: small content inlines
// after the descriptor, larger content is written to a LONG_VALUE page
// chain whose allocated page numbers are returned.
func (s *LongValueStore) Store(content []byte) ([]byte, []uint32, error) {
	order := s.f.ByteOrder()
	if len(content) < InlineThreshold {
		slot := make([]byte, lvDescriptorSize+len(content))
		order.PutUint32(slot, uint32(len(content))|lvInlineFlag)
		copy(slot[lvDescriptorSize:], content)
		return slot, nil, nil
	}

	capacity := s.segmentCapacity()
	numPages := (len(content) + capacity - 1) / capacity
	pages := make([]uint32, numPages)
	for i := range pages {
		n, err := s.channel.AllocateNewPage()
		if err != nil {
			return nil, nil, fmt.Errorf("rowdata: allocate long-value page: %w", err)
		}
		pages[i] = n
	}

	buf := s.scratch.GetBuffer()
	remaining := content
	for i, pageNum := range pages {
		for j := range buf {
			buf[j] = 0
		}
		buf[s.f.OffsetPageType] = byte(jetformat.PageTypeLongValue)
		next := uint32(0)
		if i+1 < numPages {
			next = pages[i+1]
		}
		order.PutUint32(buf[lvOffsetNext:], next)
		seg := remaining
		if len(seg) > capacity {
			seg = seg[:capacity]
		}
		order.PutUint32(buf[lvOffsetSegLen:], uint32(len(seg)))
		copy(buf[lvPageHeaderSize:], seg)
		remaining = remaining[len(seg):]
		if err := s.channel.WritePage(buf, pageNum); err != nil {
			return nil, nil, fmt.Errorf("rowdata: write long-value page %d: %w", pageNum, err)
		}
	}

	slot := make([]byte, lvDescriptorSize)
	order.PutUint32(slot, uint32(len(content)))
	order.PutUint32(slot[4:], pages[0])
	return slot, pages, nil
}

// Fetch resolves a long-value slot back to its content bytes.
func (s *LongValueStore) Fetch(slot []byte) ([]byte, error) {
	if len(slot) < lvDescriptorSize {
		return nil, fmt.Errorf("rowdata: long-value slot of %d bytes too short", len(slot))
	}
	order := s.f.ByteOrder()
	word := order.Uint32(slot)
	length := int(word &^ lvInlineFlag)
	if word&lvInlineFlag != 0 {
		if len(slot) < lvDescriptorSize+length {
			return nil, fmt.Errorf("rowdata: inline long value truncated")
		}
		out := make([]byte, length)
		copy(out, slot[lvDescriptorSize:])
		return out, nil
	}

	out := make([]byte, 0, length)
	buf := s.scratch.GetBuffer()
	pageNum := order.Uint32(slot[4:])
	for pageNum != 0 {
		if err := s.channel.ReadPage(buf, pageNum); err != nil {
			return nil, fmt.Errorf("rowdata: read long-value page %d: %w", pageNum, err)
		}
		if buf[s.f.OffsetPageType] != byte(jetformat.PageTypeLongValue) {
			return nil, fmt.Errorf("rowdata: page %d type byte 0x%02x is not a long-value page", pageNum, buf[s.f.OffsetPageType])
		}
		segLen := int(order.Uint32(buf[lvOffsetSegLen:]))
		if segLen > s.segmentCapacity() {
			return nil, fmt.Errorf("rowdata: long-value page %d claims %d content bytes", pageNum, segLen)
		}
		out = append(out, buf[lvPageHeaderSize:lvPageHeaderSize+segLen]...)
		pageNum = order.Uint32(buf[lvOffsetNext:])
	}
	if len(out) != length {
		return nil, fmt.Errorf("rowdata: long-value chain yielded %d bytes, descriptor says %d", len(out), length)
	}
	return out, nil
}

// Pages enumerates the chain behind a long-value slot; inline slots
// return nothing.
func (s *LongValueStore) Pages(slot []byte) ([]uint32, error) {
	if len(slot) < lvDescriptorSize {
		return nil, fmt.Errorf("rowdata: long-value slot of %d bytes too short", len(slot))
	}
	order := s.f.ByteOrder()
	if order.Uint32(slot)&lvInlineFlag != 0 {
		return nil, nil
	}
	var pages []uint32
	buf := s.scratch.GetBuffer()
	pageNum := order.Uint32(slot[4:])
	for pageNum != 0 {
		pages = append(pages, pageNum)
		if err := s.channel.ReadPage(buf, pageNum); err != nil {
			return nil, fmt.Errorf("rowdata: read long-value page %d: %w", pageNum, err)
		}
		pageNum = order.Uint32(buf[lvOffsetNext:])
	}
	return pages, nil
}
