// Package index implements the on-disk B-tree index subsystem: the
// order-preserving entry encoding of column tuples (C8 keys), the
// physical tree with its split and cursor machinery (C8), and the named
// logical-index wrapper (C9) that shares one physical tree between
// several declared indexes.
package index

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/coltype"
)

// Per-column entry flag bytes. Text sort keys carry their own start
// flag (the same 0x7F/0x80 values) from the collation encoder; every
// other type gets the flag prepended here. Nulls are a flag byte with
// no payload at all.
const (
	entryFlagNullAsc     = 0x00
	entryFlagNullDesc    = 0xFF
	entryFlagNonNullAsc  = 0x7F
	entryFlagNonNullDesc = 0x80

	columnSeparatorAsc  = 0x00
	columnSeparatorDesc = 0xFF
)

// rowIdSuffixLen is the fixed encoded RowId tail of every leaf entry:
// four big-endian page bytes and one row byte. The suffix is never
// complemented for descending columns, and row numbers are bounded at
// 250 per data page by the layers that assign them.
const rowIdSuffixLen = 5

// IndexColumn binds one of the index's columns to its sort direction.
type IndexColumn struct {
	Column     *coltype.Column
	Descending bool
}

// EncodeKeyPrefix appends the concatenated per-column sort keys (each
// terminated by a column separator) for values, which must be aligned
// with cols. A nil value encodes as the null flag byte alone.
func EncodeKeyPrefix(dst []byte, cols []IndexColumn, values []any) ([]byte, error) {
	if len(values) != len(cols) {
		return nil, fmt.Errorf("index: %d values for %d index columns", len(values), len(cols))
	}
	for i, ic := range cols {
		v := values[i]
		if v == nil {
			if ic.Descending {
				dst = append(dst, entryFlagNullDesc)
			} else {
				dst = append(dst, entryFlagNullAsc)
			}
		} else {
			isText := ic.Column.Type == coltype.Text || ic.Column.Type == coltype.Memo
			if !isText {
				if ic.Descending {
					dst = append(dst, entryFlagNonNullDesc)
				} else {
					dst = append(dst, entryFlagNonNullAsc)
				}
			}
			coder, err := ic.Column.Coder()
			if err != nil {
				return nil, err
			}
			dst, err = coder.SortKey(dst, v, ic.Descending)
			if err != nil {
				return nil, fmt.Errorf("index: column %q: %w", ic.Column.Name, err)
			}
		}
		if ic.Descending {
			dst = append(dst, columnSeparatorDesc)
		} else {
			dst = append(dst, columnSeparatorAsc)
		}
	}
	return dst, nil
}

// AppendRowIdSuffix appends the 5-byte RowId tail.
func AppendRowIdSuffix(dst []byte, pageNumber uint32, rowNumber byte) []byte {
	return append(dst,
		byte(pageNumber>>24), byte(pageNumber>>16), byte(pageNumber>>8), byte(pageNumber),
		rowNumber)
}

// SplitEntry separates a leaf entry into its key prefix and decoded
// RowId tail.
func SplitEntry(entry []byte) (prefix []byte, pageNumber uint32, rowNumber byte, err error) {
	if len(entry) < rowIdSuffixLen {
		return nil, 0, 0, fmt.Errorf("index: entry of %d bytes has no RowId suffix", len(entry))
	}
	cut := len(entry) - rowIdSuffixLen
	tail := entry[cut:]
	page := uint32(tail[0])<<24 | uint32(tail[1])<<16 | uint32(tail[2])<<8 | uint32(tail[3])
	return entry[:cut], page, tail[4], nil
}

// NullPrefix returns the key prefix of an all-null tuple, used to
// decide whether a duplicate key prefix is tolerated on a unique index.
func NullPrefix(cols []IndexColumn) []byte {
	dst := make([]byte, 0, 2*len(cols))
	for _, ic := range cols {
		if ic.Descending {
			dst = append(dst, entryFlagNullDesc, columnSeparatorDesc)
		} else {
			dst = append(dst, entryFlagNullAsc, columnSeparatorAsc)
		}
	}
	return dst
}

// ConstructIndexValues projects a column-name-to-value map into a value
// slice aligned with the index's columns. ok is false when any index
// column is missing from the map entirely (an explicit nil is a present
// null, not a missing column).
func ConstructIndexValues(cols []IndexColumn, row map[string]any) ([]any, bool) {
	values := make([]any, len(cols))
	for i, ic := range cols {
		v, present := row[ic.Column.Name]
		if !present {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// allNull reports whether every projected value is null.
func allNull(values []any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}
