package usagemap

import (
	"encoding/binary"
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
)

// inlineWindowBits is the fixed window size of an inline usage map: a
// 64-byte bitmap, one bit per page.
const inlineWindowBits = 512

// InlineUsageMap is the fixed 64-byte-bitmap encoding, covering up to
// 512 contiguous pages starting at startPage.
type InlineUsageMap struct {
	decl   *Declaration
	format *jetformat.Format
	modCnt uint64
}

func newInline(decl *Declaration, format *jetformat.Format) *InlineUsageMap {
	return &InlineUsageMap{decl: decl, format: format}
}

// NewInline formats decl as a fresh inline usage map starting at
// startPage with every bit clear, and persists it.
func NewInline(decl *Declaration, format *jetformat.Format, startPage uint32) (*InlineUsageMap, error) {
	b := decl.Bytes()
	b[format.OffsetUsageMapType] = byte(mapTypeInline)
	binary.LittleEndian.PutUint32(b[format.OffsetInlineStartPage:], startPage)
	bm := b[format.OffsetInlineBitmap : format.OffsetInlineBitmap+inlineWindowBits/8]
	for i := range bm {
		bm[i] = 0
	}
	if err := decl.Persist(); err != nil {
		return nil, err
	}
	return &InlineUsageMap{decl: decl, format: format}, nil
}

func (m *InlineUsageMap) startPage() uint32 {
	return binary.LittleEndian.Uint32(m.decl.Bytes()[m.format.OffsetInlineStartPage:])
}

func (m *InlineUsageMap) setStartPage(n uint32) {
	binary.LittleEndian.PutUint32(m.decl.Bytes()[m.format.OffsetInlineStartPage:], n)
}

func (m *InlineUsageMap) bitmap() []byte {
	b := m.decl.Bytes()
	return b[m.format.OffsetInlineBitmap : m.format.OffsetInlineBitmap+inlineWindowBits/8]
}

// ModCount returns the mutation counter, bumped on every add/remove.
func (m *InlineUsageMap) ModCount() uint64 { return m.modCnt }

// Contains reports whether n falls within the current window and is
// set.
func (m *InlineUsageMap) Contains(n uint32) bool {
	sp := m.startPage()
	if n < sp || n-sp >= inlineWindowBits {
		return false
	}
	idx := n - sp
	return m.bitmap()[idx/8]&(1<<(idx%8)) != 0
}

// advanceWindow moves the window so n becomes bit 0, filling every bit
// with fill (false clears, true sets every bit — the remove-after-
// advance encoding).
func (m *InlineUsageMap) advanceWindow(n uint32, fill bool) error {
	bm := m.bitmap()
	var b byte
	if fill {
		b = 0xFF
	}
	for i := range bm {
		bm[i] = b
	}
	m.setStartPage(n)
	return m.decl.Persist()
}

// AddPageNumber marks n as owned. n below the current start page is a
// hard error; n above the window advances the window (clearing it,
// then setting bit 0).
func (m *InlineUsageMap) AddPageNumber(n uint32) error {
	sp := m.startPage()
	if n < sp {
		return fmt.Errorf("usagemap: inline add page %d precedes start page %d", n, sp)
	}
	if n-sp >= inlineWindowBits {
		if err := m.advanceWindow(n, false); err != nil {
			return err
		}
		sp = n
	}
	idx := n - sp
	bm := m.bitmap()
	bm[idx/8] |= 1 << (idx % 8)
	m.modCnt++
	return m.decl.Persist()
}

// RemovePageNumber marks n as not owned. n above the window advances
// the window with the wrapping "all free" encoding: the new window is
// filled, not cleared, modeling a free-page map wrapping past its
// window.
func (m *InlineUsageMap) RemovePageNumber(n uint32) error {
	sp := m.startPage()
	if n < sp {
		return fmt.Errorf("usagemap: inline remove page %d precedes start page %d", n, sp)
	}
	if n-sp >= inlineWindowBits {
		if err := m.advanceWindow(n, true); err != nil {
			return err
		}
		m.modCnt++
		return nil
	}
	idx := n - sp
	bm := m.bitmap()
	bm[idx/8] &^= 1 << (idx % 8)
	m.modCnt++
	return m.decl.Persist()
}

// Forward returns an ascending iterator over owned pages.
func (m *InlineUsageMap) Forward() Iterator {
	return &inlineForwardIterator{m: m, modCnt: m.modCnt, next: m.startPage()}
}

// Reverse returns a descending iterator over owned pages.
func (m *InlineUsageMap) Reverse() Iterator {
	sp := m.startPage()
	return &inlineReverseIterator{m: m, modCnt: m.modCnt, next: sp + inlineWindowBits - 1, valid: true}
}

type inlineForwardIterator struct {
	m      *InlineUsageMap
	modCnt uint64
	next   uint32
}

func (it *inlineForwardIterator) Next() (uint32, bool) {
	if it.modCnt != it.m.modCnt {
		it.modCnt = it.m.modCnt
		if it.next < it.m.startPage() {
			it.next = it.m.startPage()
		}
	}
	sp := it.m.startPage()
	top := sp + inlineWindowBits
	bm := it.m.bitmap()
	// next only moves past pages that were returned, so a later call
	// after a mutation rescans from just after the last returned page.
	for p := it.next; p < top; p++ {
		idx := p - sp
		if bm[idx/8]&(1<<(idx%8)) != 0 {
			it.next = p + 1
			return p, true
		}
	}
	return 0, false
}

type inlineReverseIterator struct {
	m      *InlineUsageMap
	modCnt uint64
	next   uint32
	valid  bool
}

func (it *inlineReverseIterator) Next() (uint32, bool) {
	if !it.valid {
		return 0, false
	}
	if it.modCnt != it.m.modCnt {
		it.modCnt = it.m.modCnt
		top := it.m.startPage() + inlineWindowBits - 1
		if it.next > top {
			it.next = top
		}
	}
	sp := it.m.startPage()
	bm := it.m.bitmap()
	for {
		if it.next < sp {
			it.valid = false
			return 0, false
		}
		idx := it.next - sp
		if bm[idx/8]&(1<<(idx%8)) != 0 {
			page := it.next
			if it.next == sp {
				it.valid = false
			} else {
				it.next--
			}
			return page, true
		}
		if it.next == sp {
			it.valid = false
			return 0, false
		}
		it.next--
	}
}
