package rowdata

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/coltype"
	"github.com/ambermdb/jetcore/internal/jetformat"
)

// Row layout, front to back:
//
//	[fixed-length columns, declaration order, at cumulative offsets]
//	[variable-length values, concatenated]
//	[slack, only when padding a row to a fixed slot size]
//	[variable offset table: (varCount+1) uint16s, row-relative]
//	[null bitmap: one bit per column, 1 = not null]
//	[varCount: uint16]
//
// The trailer is parsed from the row's end, so slack between the last
// variable value and the offset table is invisible to readers; that is
// what lets an in-place update re-encode a smaller record into the
// original slot.

// EncodeRow packs values (keyed by column name; missing or nil means
// null) into row bytes for the given column declarations. Long-value
// content at or above the inline threshold is written to LONG_VALUE
// pages through lvs; the numbers of any pages allocated for this row
// are returned so the caller can record them in the table's usage map.
//
// slotSize > 0 pads the encoding with slack to exactly that many bytes;
// an encoding that cannot fit returns ErrPageFull semantics via a plain
// error, letting the caller fall back to migration.
func EncodeRow(f *jetformat.Format, cols []*coltype.Column, values map[string]any, lvs *LongValueStore, slotSize int) ([]byte, []uint32, error) {
	order := f.ByteOrder()

	fixedSize := 0
	varCount := 0
	for _, c := range cols {
		if size, ok := c.StorageSize(); ok {
			fixedSize += size
		} else {
			varCount++
		}
	}

	fixed := make([]byte, fixedSize)
	varValues := make([][]byte, 0, varCount)
	bitmap := make([]byte, (len(cols)+7)/8)
	var lvPages []uint32

	fixedOff := 0
	for i, c := range cols {
		v, present := values[c.Name]
		isNull := !present || v == nil
		if !isNull {
			bitmap[i/8] |= 1 << (i % 8)
		}

		size, isFixed := c.StorageSize()
		if isFixed {
			if !isNull {
				coder, err := c.Coder()
				if err != nil {
					return nil, nil, err
				}
				raw, err := coder.Write(v)
				if err != nil {
					return nil, nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
				}
				if len(raw) != size {
					return nil, nil, fmt.Errorf("rowdata: column %q coder produced %d bytes, want %d", c.Name, len(raw), size)
				}
				copy(fixed[fixedOff:], raw)
			}
			fixedOff += size
			continue
		}

		if isNull {
			varValues = append(varValues, nil)
			continue
		}
		coder, err := c.Coder()
		if err != nil {
			return nil, nil, err
		}
		raw, err := coder.Write(v)
		if err != nil {
			return nil, nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
		}
		if c.Type.IsLongValue() {
			slot, pages, err := lvs.Store(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
			}
			lvPages = append(lvPages, pages...)
			raw = slot
		}
		varValues = append(varValues, raw)
	}

	varDataSize := 0
	for _, v := range varValues {
		varDataSize += len(v)
	}
	minSize := fixedSize + varDataSize + 2*(varCount+1) + len(bitmap) + 2
	size := minSize
	if slotSize > 0 {
		if slotSize < minSize {
			return nil, nil, fmt.Errorf("rowdata: row needs %d bytes, slot holds %d", minSize, slotSize)
		}
		size = slotSize
	}

	row := make([]byte, size)
	copy(row, fixed)
	pos := fixedSize
	offsets := make([]uint16, 0, varCount+1)
	for _, v := range varValues {
		offsets = append(offsets, uint16(pos))
		copy(row[pos:], v)
		pos += len(v)
	}
	offsets = append(offsets, uint16(pos))

	// Trailer, back to front.
	tail := size
	order.PutUint16(row[tail-2:], uint16(varCount))
	tail -= 2
	copy(row[tail-len(bitmap):], bitmap)
	tail -= len(bitmap)
	for i := varCount; i >= 0; i-- {
		order.PutUint16(row[tail-2:], offsets[i])
		tail -= 2
	}
	return row, lvPages, nil
}

// rowTrailer locates the trailer regions of an encoded row.
func rowTrailer(f *jetformat.Format, numCols int, row []byte) (varCount int, offsets []int, bitmap []byte, err error) {
	order := f.ByteOrder()
	bmLen := (numCols + 7) / 8
	if len(row) < 2+bmLen+2 {
		return 0, nil, nil, fmt.Errorf("rowdata: row of %d bytes too short for its trailer", len(row))
	}
	varCount = int(order.Uint16(row[len(row)-2:]))
	bmStart := len(row) - 2 - bmLen
	tblStart := bmStart - 2*(varCount+1)
	if tblStart < 0 {
		return 0, nil, nil, fmt.Errorf("rowdata: impossible variable-column count %d", varCount)
	}
	bitmap = row[bmStart : bmStart+bmLen]
	offsets = make([]int, varCount+1)
	for i := range offsets {
		offsets[i] = int(order.Uint16(row[tblStart+2*i:]))
		if offsets[i] > tblStart {
			return 0, nil, nil, fmt.Errorf("rowdata: variable offset %d past the offset table", offsets[i])
		}
	}
	return varCount, offsets, bitmap, nil
}

// PadRow re-lays a minimally encoded row into a slot of exactly
// slotSize bytes by inserting slack between the variable data and the
// trailer. The variable offsets point into the body and survive the
// move untouched.
func PadRow(f *jetformat.Format, numCols int, row []byte, slotSize int) ([]byte, error) {
	if slotSize < len(row) {
		return nil, fmt.Errorf("rowdata: row of %d bytes cannot pad down to %d", len(row), slotSize)
	}
	varCount, _, bitmap, err := rowTrailer(f, numCols, row)
	if err != nil {
		return nil, err
	}
	trailerLen := 2 + len(bitmap) + 2*(varCount+1)
	bodyLen := len(row) - trailerLen
	out := make([]byte, slotSize)
	copy(out, row[:bodyLen])
	copy(out[slotSize-trailerLen:], row[bodyLen:])
	return out, nil
}

// DecodeRow unpacks row into values aligned with cols (nil for null
// columns). Long-value descriptors are resolved through lvs.
func DecodeRow(f *jetformat.Format, cols []*coltype.Column, row []byte, lvs *LongValueStore) ([]any, error) {
	_, offsets, bitmap, err := rowTrailer(f, len(cols), row)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	fixedOff := 0
	varIdx := 0
	for i, c := range cols {
		size, isFixed := c.StorageSize()
		notNull := bitmap[i/8]&(1<<(i%8)) != 0

		if isFixed {
			if notNull {
				coder, err := c.Coder()
				if err != nil {
					return nil, err
				}
				v, err := coder.Read(row[fixedOff : fixedOff+size])
				if err != nil {
					return nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
				}
				values[i] = v
			}
			fixedOff += size
			continue
		}

		raw := row[offsets[varIdx]:offsets[varIdx+1]]
		varIdx++
		if !notNull {
			continue
		}
		if c.Type.IsLongValue() {
			raw, err = lvs.Fetch(raw)
			if err != nil {
				return nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
			}
		}
		coder, err := c.Coder()
		if err != nil {
			return nil, err
		}
		v, err := coder.Read(raw)
		if err != nil {
			return nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

// LongValuePagesOf enumerates every LONG_VALUE page referenced by row's
// long-value columns, so a delete can hand them back to the table's
// free-page accounting.
func LongValuePagesOf(f *jetformat.Format, cols []*coltype.Column, row []byte, lvs *LongValueStore) ([]uint32, error) {
	_, offsets, bitmap, err := rowTrailer(f, len(cols), row)
	if err != nil {
		return nil, err
	}
	var pages []uint32
	varIdx := 0
	for i, c := range cols {
		if _, isFixed := c.StorageSize(); isFixed {
			continue
		}
		raw := row[offsets[varIdx]:offsets[varIdx+1]]
		varIdx++
		if bitmap[i/8]&(1<<(i%8)) == 0 || !c.Type.IsLongValue() {
			continue
		}
		chain, err := lvs.Pages(raw)
		if err != nil {
			return nil, fmt.Errorf("rowdata: column %q: %w", c.Name, err)
		}
		pages = append(pages, chain...)
	}
	return pages, nil
}
