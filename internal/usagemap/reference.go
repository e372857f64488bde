package usagemap

import (
	"encoding/binary"
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/pagestore"
)

// maxReferenceSegments is the number of 4-byte pointer slots the read
// path tolerates in a reference declaration row.
const maxReferenceSegments = 17

// writableSegments is the number of pointer slots this implementation
// ever populates. Existing files may carry a 17th slot, which reads
// fine, but nothing here produces it: 16 segments already cover
// 16 * PagesPerUsageMapPage pages, the capacity the format documents.
const writableSegments = 16

// ReferenceUsageMap is the multi-page encoding: up to maxReferenceSegments
// pointers to dedicated USAGE_MAP pages, each holding one segment of the
// bit-set.
type ReferenceUsageMap struct {
	channel *pagestore.PageChannel
	decl    *Declaration
	format  *jetformat.Format
	modCnt  uint64

	cachedSegment int
	cachedBuf     []byte
	cachedPage    uint32
}

func newReference(channel *pagestore.PageChannel, decl *Declaration, format *jetformat.Format) *ReferenceUsageMap {
	return &ReferenceUsageMap{channel: channel, decl: decl, format: format, cachedSegment: -1}
}

// NewReference formats decl as a fresh reference usage map with every
// pointer slot empty, and persists it.
func NewReference(channel *pagestore.PageChannel, decl *Declaration, format *jetformat.Format) (*ReferenceUsageMap, error) {
	b := decl.Bytes()
	b[format.OffsetUsageMapType] = byte(mapTypeReference)
	ptrs := b[format.OffsetReferenceMapPageNumbers:]
	for i := 0; i < maxReferenceSegments*4 && i < len(ptrs); i++ {
		ptrs[i] = 0
	}
	if err := decl.Persist(); err != nil {
		return nil, err
	}
	return &ReferenceUsageMap{channel: channel, decl: decl, format: format, cachedSegment: -1}, nil
}

// ModCount returns the mutation counter, bumped on every add/remove.
func (m *ReferenceUsageMap) ModCount() uint64 { return m.modCnt }

func (m *ReferenceUsageMap) pointerSlot(segment int) uint32 {
	b := m.decl.Bytes()
	off := m.format.OffsetReferenceMapPageNumbers + segment*4
	return binary.LittleEndian.Uint32(b[off:])
}

func (m *ReferenceUsageMap) setPointerSlot(segment int, page uint32) error {
	b := m.decl.Bytes()
	off := m.format.OffsetReferenceMapPageNumbers + segment*4
	binary.LittleEndian.PutUint32(b[off:], page)
	return m.decl.Persist()
}

func (m *ReferenceUsageMap) segmentFor(n uint32) (segment, bitIndex int, err error) {
	ppm := uint32(m.format.PagesPerUsageMapPage)
	segment = int(n / ppm)
	if segment >= maxReferenceSegments {
		return 0, 0, fmt.Errorf("usagemap: page %d exceeds reference map capacity", n)
	}
	bitIndex = int(n % ppm)
	return segment, bitIndex, nil
}

// loadSegment returns the segment's page buffer, reading it (or, if
// allocate is true and the slot is empty, allocating and formatting a
// fresh USAGE_MAP page) as needed. It returns a nil buffer, no error,
// when allocate is false and the slot is empty.
func (m *ReferenceUsageMap) loadSegment(segment int, allocate bool) ([]byte, uint32, error) {
	if m.cachedSegment == segment {
		return m.cachedBuf, m.cachedPage, nil
	}

	pageNumber := m.pointerSlot(segment)
	if pageNumber == 0 {
		if !allocate {
			return nil, 0, nil
		}
		if segment >= writableSegments {
			return nil, 0, fmt.Errorf("usagemap: reference map has only %d writable segments", writableSegments)
		}
		n, err := m.channel.AllocateNewPage()
		if err != nil {
			return nil, 0, fmt.Errorf("usagemap: allocate segment page: %w", err)
		}
		buf := m.channel.CreatePageBuffer()
		buf[0] = byte(jetformat.PageTypeUsageMap)
		buf[1] = 0x01
		if err := m.channel.WritePage(buf, n); err != nil {
			return nil, 0, fmt.Errorf("usagemap: write new segment page: %w", err)
		}
		if err := m.setPointerSlot(segment, n); err != nil {
			return nil, 0, err
		}
		m.cachedSegment, m.cachedBuf, m.cachedPage = segment, buf, n
		return buf, n, nil
	}

	buf := m.channel.CreatePageBuffer()
	if err := m.channel.ReadPage(buf, pageNumber); err != nil {
		return nil, 0, fmt.Errorf("usagemap: read segment page %d: %w", pageNumber, err)
	}
	m.cachedSegment, m.cachedBuf, m.cachedPage = segment, buf, pageNumber
	return buf, pageNumber, nil
}

func (m *ReferenceUsageMap) bitmapOf(buf []byte) []byte {
	return buf[m.format.OffsetUsageMapPageData:]
}

// AddPageNumber marks n as owned, lazily allocating the owning segment
// page if it does not yet exist.
func (m *ReferenceUsageMap) AddPageNumber(n uint32) error {
	segment, bitIndex, err := m.segmentFor(n)
	if err != nil {
		return err
	}
	buf, pageNumber, err := m.loadSegment(segment, true)
	if err != nil {
		return err
	}
	bm := m.bitmapOf(buf)
	bm[bitIndex/8] |= 1 << (bitIndex % 8)
	if err := m.channel.WritePage(buf, pageNumber); err != nil {
		return fmt.Errorf("usagemap: write segment page %d: %w", pageNumber, err)
	}
	m.modCnt++
	return nil
}

// RemovePageNumber marks n as not owned. Removing from a segment that
// was never allocated is a no-op: there is nothing to clear.
func (m *ReferenceUsageMap) RemovePageNumber(n uint32) error {
	segment, bitIndex, err := m.segmentFor(n)
	if err != nil {
		return err
	}
	buf, pageNumber, err := m.loadSegment(segment, false)
	if err != nil {
		return err
	}
	if buf == nil {
		return nil
	}
	bm := m.bitmapOf(buf)
	bm[bitIndex/8] &^= 1 << (bitIndex % 8)
	if err := m.channel.WritePage(buf, pageNumber); err != nil {
		return fmt.Errorf("usagemap: write segment page %d: %w", pageNumber, err)
	}
	m.modCnt++
	return nil
}

// Contains reports whether n is currently marked owned.
func (m *ReferenceUsageMap) Contains(n uint32) bool {
	segment, bitIndex, err := m.segmentFor(n)
	if err != nil {
		return false
	}
	buf, _, err := m.loadSegment(segment, false)
	if err != nil || buf == nil {
		return false
	}
	bm := m.bitmapOf(buf)
	return bm[bitIndex/8]&(1<<(bitIndex%8)) != 0
}

// Forward returns an ascending iterator over owned pages, segment by
// segment.
func (m *ReferenceUsageMap) Forward() Iterator {
	return &referenceForwardIterator{m: m}
}

// Reverse returns a descending iterator over owned pages, segment by
// segment.
func (m *ReferenceUsageMap) Reverse() Iterator {
	return &referenceReverseIterator{m: m, segment: maxReferenceSegments - 1, bitIdx: m.format.PagesPerUsageMapPage - 1}
}

type referenceForwardIterator struct {
	m       *ReferenceUsageMap
	segment int
	bitIdx  int
}

func (it *referenceForwardIterator) Next() (uint32, bool) {
	ppm := it.m.format.PagesPerUsageMapPage
	for it.segment < maxReferenceSegments {
		if it.m.pointerSlot(it.segment) == 0 {
			it.segment++
			it.bitIdx = 0
			continue
		}
		buf, _, err := it.m.loadSegment(it.segment, false)
		if err != nil || buf == nil {
			it.segment++
			it.bitIdx = 0
			continue
		}
		bm := it.m.bitmapOf(buf)
		for it.bitIdx < ppm {
			if bm[it.bitIdx/8]&(1<<(it.bitIdx%8)) != 0 {
				page := uint32(it.segment)*uint32(ppm) + uint32(it.bitIdx)
				it.bitIdx++
				return page, true
			}
			it.bitIdx++
		}
		it.segment++
		it.bitIdx = 0
	}
	return 0, false
}

type referenceReverseIterator struct {
	m       *ReferenceUsageMap
	segment int
	bitIdx  int
}

func (it *referenceReverseIterator) Next() (uint32, bool) {
	ppm := it.m.format.PagesPerUsageMapPage
	for it.segment >= 0 {
		if it.m.pointerSlot(it.segment) == 0 {
			it.segment--
			it.bitIdx = ppm - 1
			continue
		}
		buf, _, err := it.m.loadSegment(it.segment, false)
		if err != nil || buf == nil {
			it.segment--
			it.bitIdx = ppm - 1
			continue
		}
		bm := it.m.bitmapOf(buf)
		for it.bitIdx >= 0 {
			if bm[it.bitIdx/8]&(1<<(it.bitIdx%8)) != 0 {
				page := uint32(it.segment)*uint32(ppm) + uint32(it.bitIdx)
				it.bitIdx--
				return page, true
			}
			it.bitIdx--
		}
		it.segment--
		it.bitIdx = ppm - 1
	}
	return 0, false
}
