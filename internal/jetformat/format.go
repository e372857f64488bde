// Package jetformat holds the per-version constants that describe the
// on-disk layout of a database file: page size, key offsets, size
// limits, and byte order. A Format value is selected once, at open or
// create time, from the database header's format-version byte, and is
// read-only for the lifetime of the handle that selected it.
package jetformat

import "encoding/binary"

// PageType is the single-byte tag at offset 0 of every page.
type PageType byte

const (
	// PageTypeHeader tags page 0, the database header.
	PageTypeHeader PageType = 0x00

	// PageTypeData tags a row-bearing data page.
	PageTypeData PageType = 0x01

	// PageTypeUsageMap tags a reference usage-map segment page.
	PageTypeUsageMap PageType = 0x02

	// PageTypeIndexNode tags an interior index page.
	PageTypeIndexNode PageType = 0x03

	// PageTypeIndexLeaf tags an index leaf page.
	PageTypeIndexLeaf PageType = 0x04

	// PageTypeLongValue tags a page holding long-value (MEMO/OLE)
	// content segregated from its row.
	PageTypeLongValue PageType = 0x05

	// PageTypeTableDef tags a table-definition page.
	PageTypeTableDef PageType = 0x06

	// PageTypeMapDecl tags a page holding a usage map's declaration
	// region.
	PageTypeMapDecl PageType = 0x07

	// PageTypeRelationships tags the page storing the database's
	// relationship records.
	PageTypeRelationships PageType = 0x08
)

// Version tags the format-version byte read from (or written to) the
// database header.
type Version byte

const (
	// VersionLegacy is the older Jet3/Jet4-era format: 2048-byte pages,
	// the legacy text collation table (see internal/textcode), and a
	// 255-column ceiling.
	VersionLegacy Version = 0x00

	// VersionGeneral is the 2010+ format: 4096-byte pages and the
	// "general" collation table with extended BMP coverage.
	VersionGeneral Version = 0x01
)

// Format is the complete set of constants needed to interpret a
// database's page and row layout. All multi-byte fields in the on-disk
// format are little-endian; ByteOrder returns that order so most
// components read it from one place, while internal/usagemap names
// binary.LittleEndian directly.
type Format struct {
	Version Version

	// PageSize is the fixed size, in bytes, of every page in the
	// database, including the header page.
	PageSize int

	// PagesPerUsageMapPage bounds how many pages one reference-usage-map
	// segment page can describe.
	PagesPerUsageMapPage int

	// MaxTableNameLength and MaxColumnsPerTable bound schema identifiers
	// and column counts at table-creation time.
	MaxTableNameLength int
	MaxColumnsPerTable int

	// TextFieldMaxLength is the maximum declared length, in characters,
	// of a fixed (non-long-value) TEXT column.
	TextFieldMaxLength int

	// Row/data-page layout offsets.
	OffsetPageType      int // page type tag, 1 byte, every page
	OffsetFreeSpace     int // data page: 2-byte offset to first free byte
	OffsetTableDefPage  int // data page: 4-byte owning table-definition page number
	OffsetRowCount      int // data page: 2-byte count of row-offset-table entries
	OffsetRowsStart     int // data page: byte offset where the fixed header ends and rows begin

	// Usage-map declaration-row layout.
	OffsetUsageMapType           int // 1-byte map-type tag: 0x00 inline, 0x01 reference
	OffsetInlineStartPage        int // inline map: 4-byte starting page number
	OffsetInlineBitmap           int // inline map: start of the 64-byte bitmap
	OffsetReferenceMapPageNumbers int // reference map: start of up to 17 4-byte pointers
	OffsetUsageMapPageData       int // usage-map segment page: where the bitmap body begins, after the page's own small header

	// Index node layout.
	OffsetIndexEntryCount  int // index node: 2-byte entry count
	OffsetIndexFreeSpace   int // index node: 2-byte free-space offset
	OffsetIndexPrevLeaf    int // leaf only: 4-byte previous-leaf page number
	OffsetIndexNextLeaf    int // leaf only: 4-byte next-leaf page number
	OffsetIndexEntriesData int // index node: where the entry area begins
}

// ByteOrder is the byte order used throughout the on-disk format.
func (f *Format) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

// Legacy returns the format descriptor for VersionLegacy: 2048-byte
// pages, with the reference-map segment capacity derived from the page
// size. Offsets below mirror a
// conventional desktop-database page layout: a small fixed header
// followed by a growable, tail-anchored row/entry region.
func Legacy() *Format {
	f := &Format{
		Version:            VersionLegacy,
		PageSize:           2048,
		MaxTableNameLength: 64,
		MaxColumnsPerTable:   255,
		TextFieldMaxLength:   255,

		OffsetPageType:     0,
		OffsetFreeSpace:     2,
		OffsetTableDefPage: 4,
		OffsetRowCount:      8,
		OffsetRowsStart:     10,

		OffsetUsageMapType:            0,
		OffsetInlineStartPage:         1,
		OffsetInlineBitmap:            5,
		OffsetReferenceMapPageNumbers: 1,
		OffsetUsageMapPageData:        4,

		OffsetIndexEntryCount:  1,
		OffsetIndexFreeSpace:   3,
		OffsetIndexPrevLeaf:    5,
		OffsetIndexNextLeaf:    9,
		OffsetIndexEntriesData: 16,
	}
	f.PagesPerUsageMapPage = pagesPerUsageMapPage(f)
	return f
}

// General returns the format descriptor for VersionGeneral: the 2010+
// format with 4096-byte pages. Layout offsets are the same shape as
// Legacy; only the page size (and the segment capacity derived from
// it), name length, column ceiling, and text field length differ.
func General() *Format {
	f := Legacy()
	f.Version = VersionGeneral
	f.PageSize = 4096
	f.MaxTableNameLength = 128
	f.MaxColumnsPerTable = 1000
	f.TextFieldMaxLength = 4000
	f.PagesPerUsageMapPage = pagesPerUsageMapPage(f)
	return f
}

// pagesPerUsageMapPage derives the reference-map segment capacity from
// the page size: every byte after the segment page's small header
// holds 8 bits, each bit one page.
func pagesPerUsageMapPage(f *Format) int {
	return (f.PageSize - f.OffsetUsageMapPageData) * 8
}

// ForVersion resolves a Format from a version byte read out of an
// existing database header.
func ForVersion(v Version) (*Format, error) {
	switch v {
	case VersionLegacy:
		return Legacy(), nil
	case VersionGeneral:
		return General(), nil
	default:
		return nil, &UnsupportedVersionError{Version: v}
	}
}

// UnsupportedVersionError is returned by ForVersion for an unrecognized
// format-version byte.
type UnsupportedVersionError struct {
	Version Version
}

func (e *UnsupportedVersionError) Error() string {
	return "jetformat: unsupported format version byte"
}
