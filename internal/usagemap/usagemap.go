// Package usagemap implements the free-space accounting bitmaps (C5):
// a pair of (startPage, bit-set) physical encodings that track which
// pages a table owns. Construction dispatches on the map-type byte
// stored in a "declaration" row; callers never construct an inline or
// reference map directly except when formatting a brand-new one.
package usagemap

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/pagestore"
)

// UsageMap tracks page ownership as a compact bit-set and exposes
// mod-count-aware forward/reverse iteration.
type UsageMap interface {
	// AddPageNumber marks n as owned.
	AddPageNumber(n uint32) error

	// RemovePageNumber marks n as not owned.
	RemovePageNumber(n uint32) error

	// Contains reports whether n is currently marked owned.
	Contains(n uint32) bool

	// Forward returns an iterator over owned page numbers in ascending
	// order.
	Forward() Iterator

	// Reverse returns an iterator over owned page numbers in descending
	// order.
	Reverse() Iterator

	// ModCount returns how many mutations this map has observed. An
	// iterator in progress compares against the value it captured at
	// creation to detect concurrent mutation.
	ModCount() uint64
}

// Iterator walks a UsageMap's owned page numbers. Next returns false
// once exhausted. The inline map's forward iterator may be called again
// later and then returns pages gained after the last page it returned;
// the inline reverse iterator and the reference map's iterators stay
// exhausted once Next has returned false.
type Iterator interface {
	Next() (uint32, bool)
}

// mapType tags the physical encoding of a usage map's declaration row.
type mapType byte

const (
	mapTypeInline    mapType = 0x00
	mapTypeReference mapType = 0x01
)

// Open dispatches on decl's map-type byte and returns the matching
// UsageMap implementation.
func Open(channel *pagestore.PageChannel, decl *Declaration, format *jetformat.Format) (UsageMap, error) {
	switch mapType(decl.Bytes()[format.OffsetUsageMapType]) {
	case mapTypeInline:
		return newInline(decl, format), nil
	case mapTypeReference:
		return newReference(channel, decl, format), nil
	default:
		return nil, fmt.Errorf("usagemap: unrecognized map type byte 0x%02x", decl.Bytes()[format.OffsetUsageMapType])
	}
}
