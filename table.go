package jetcore

import (
	"errors"
	"fmt"

	"github.com/ambermdb/jetcore/internal/index"
	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/pagestore"
	"github.com/ambermdb/jetcore/internal/rowdata"
	"github.com/ambermdb/jetcore/internal/usagemap"
)

// maxRowsPerDataPage caps a page's row-offset table so row numbers fit
// the single byte the index entry suffix reserves for them.
const maxRowsPerDataPage = 250

// Index is a logical index: a name and type tag over a shared physical
// tree.
type Index = index.Index

// IndexCursor walks an index's entries in sorted order.
type IndexCursor = index.EntryCursor

// IndexEntry is one (key, RowId) pair yielded by an IndexCursor.
type IndexEntry = index.Entry

// Table is a minimal table handle: a fixed column list, a data-page
// chain, the used/free usage maps, and the table's logical indexes.
// System-catalog concerns (discovery, rich metadata) live outside the
// core.
type Table struct {
	db      *Database
	name    string
	defPage uint32

	cols      []*Column
	indexDefs []IndexDef
	indexes   []*Index

	usedDecl uint32
	freeDecl uint32
	usedMap  usagemap.UsageMap
	freeMap  usagemap.UsageMap
	lvs      *rowdata.LongValueStore

	rowCount     uint32
	lastDataPage uint32
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the table's column declarations in order.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.cols...)
}

// GetRowCount returns the number of live rows.
func (t *Table) GetRowCount() int { return int(t.rowCount) }

// Indexes returns the table's logical indexes in declaration order.
func (t *Table) Indexes() []*Index {
	return append([]*Index(nil), t.indexes...)
}

// Index returns the named logical index, or nil.
func (t *Table) Index(name string) *Index {
	for _, ix := range t.indexes {
		if ix.Name() == name {
			return ix
		}
	}
	return nil
}

func (t *Table) columnByName(name string) *Column {
	for _, c := range t.cols {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// valuesOf flattens a Row into the full column-name-to-value map the
// row and index layers work with: every column present, nil for null.
// Names that match no column are a schema error.
func (t *Table) valuesOf(row *Row) (map[string]any, error) {
	for _, name := range row.Names() {
		if t.columnByName(name) == nil {
			return nil, newSchemaError(fmt.Sprintf("table %q has no column %q", t.name, name), nil)
		}
	}
	values := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		if v, ok := row.Get(c.Name); ok {
			values[c.Name] = v
		} else {
			values[c.Name] = nil
		}
	}
	return values, nil
}

// registerIndexAllocations wires every physical tree's page allocations
// into the used map. Called once per open/create.
func (t *Table) registerIndexAllocations() {
	seen := make(map[*index.IndexData]bool)
	for _, ix := range t.indexes {
		data := ix.Data()
		if seen[data] {
			continue
		}
		seen[data] = true
		data.OnAllocate(t.usedMap.AddPageNumber)
	}
}

// loadDataPage reads pageNumber into a fresh buffer and wraps it.
func (t *Table) loadDataPage(pageNumber uint32) ([]byte, *rowdata.Page, error) {
	buf := t.db.channel.CreatePageBuffer()
	if err := t.db.channel.ReadPage(buf, pageNumber); err != nil {
		return nil, nil, newIoError("read data page", err)
	}
	page, err := rowdata.OnPage(buf, t.db.format)
	if err != nil {
		return nil, nil, newIoError("read data page", err)
	}
	return buf, page, nil
}

// placeRow finds (allocating if needed) a data page with room for a
// rowBytes-sized record and appends it, returning the new RowId.
func (t *Table) placeRow(rowBytes []byte) (RowId, []byte, *rowdata.Page, error) {
	if t.lastDataPage != 0 {
		buf, page, err := t.loadDataPage(t.lastDataPage)
		if err != nil {
			return RowId{}, nil, nil, err
		}
		if page.RowCount() < maxRowsPerDataPage && page.FreeSpace() >= len(rowBytes) {
			rowNum, err := page.AddRow(rowBytes)
			if err != nil {
				return RowId{}, nil, nil, newIoError("add row", err)
			}
			return NewRowId(int32(t.lastDataPage), int32(rowNum)), buf, page, nil
		}
	}

	pageNumber, err := t.db.channel.AllocateNewPage()
	if err != nil {
		return RowId{}, nil, nil, newIoError("allocate data page", err)
	}
	buf := t.db.channel.CreatePageBuffer()
	page := rowdata.FormatDataPage(buf, t.db.format, t.defPage)
	rowNum, err := page.AddRow(rowBytes)
	if err != nil {
		// Even an empty page cannot hold this record.
		return RowId{}, nil, nil, newIoError("add row", err)
	}
	if err := t.usedMap.AddPageNumber(pageNumber); err != nil {
		return RowId{}, nil, nil, newIoError("record data page", err)
	}
	t.lastDataPage = pageNumber
	t.db.log.DataPageAllocated(t.name, pageNumber)
	return NewRowId(int32(pageNumber), int32(rowNum)), buf, page, nil
}

// AddRow inserts a row and returns its RowId.
func (t *Table) AddRow(row *Row) (RowId, error) {
	if err := t.db.checkWritable(); err != nil {
		return RowId{}, err
	}
	values, err := t.valuesOf(row)
	if err != nil {
		return RowId{}, err
	}

	var rowId RowId
	err = t.db.guardWrite("add row", func() error {
		rowBytes, lvPages, err := rowdata.EncodeRow(t.db.format, t.cols, values, t.lvs, 0)
		if err != nil {
			return newIoError("encode row", err)
		}
		placed, pageBuf, page, err := t.placeRow(rowBytes)
		if err != nil {
			return err
		}
		rowId = placed
		if err := t.db.channel.WritePage(pageBuf, uint32(rowId.PageNumber())); err != nil {
			return newIoError("write data page", err)
		}
		for _, n := range lvPages {
			if err := t.usedMap.AddPageNumber(n); err != nil {
				return newIoError("record long-value page", err)
			}
		}
		if len(lvPages) > 0 {
			t.db.log.LongValuePages(t.name, len(lvPages))
		}

		if err := t.addIndexEntries(values, rowId); err != nil {
			// Roll the data row back so a uniqueness failure leaves the
			// table unchanged.
			if delErr := page.DeleteRow(int(rowId.RowNumber())); delErr == nil {
				_ = t.db.channel.WritePage(pageBuf, uint32(rowId.PageNumber()))
			}
			for _, n := range lvPages {
				_ = t.usedMap.RemovePageNumber(n)
				_ = t.freeMap.AddPageNumber(n)
			}
			return err
		}

		t.rowCount++
		if err := t.persistDefinition(); err != nil {
			return err
		}
		return t.db.maybeFlush()
	})
	if err != nil {
		return RowId{}, err
	}
	return rowId, nil
}

// addIndexEntries inserts values into every physical tree once (logical
// indexes sharing an IndexData share its entries), undoing earlier
// insertions if a later one fails.
func (t *Table) addIndexEntries(values map[string]any, rowId RowId) error {
	page, rowNum := uint32(rowId.PageNumber()), byte(rowId.RowNumber())
	done := make([]*Index, 0, len(t.indexes))
	seen := make(map[*index.IndexData]bool, len(t.indexes))
	for _, ix := range t.indexes {
		if seen[ix.Data()] {
			continue
		}
		seen[ix.Data()] = true
		if err := ix.AddRow(values, page, rowNum); err != nil {
			for _, prev := range done {
				_ = prev.DeleteRow(values, page, rowNum)
			}
			if errors.Is(err, index.ErrDuplicateKey) {
				return newIntegrityError(fmt.Sprintf("duplicate key on unique index %q", ix.Name()))
			}
			return newIoError("index row", err)
		}
		done = append(done, ix)
	}
	return nil
}

// resolve follows overflow pointers from rowId to the slot that
// actually holds the record.
func (t *Table) resolve(rowId RowId) (RowId, []byte, *rowdata.Page, error) {
	if !rowId.Valid() {
		return RowId{}, nil, nil, newStateError(fmt.Sprintf("invalid %v", rowId), nil)
	}
	for hops := 0; ; hops++ {
		if hops > 8 {
			return RowId{}, nil, nil, newIoError("resolve row", fmt.Errorf("overflow pointer cycle at %v", rowId))
		}
		buf, page, err := t.loadDataPage(uint32(rowId.PageNumber()))
		if err != nil {
			return RowId{}, nil, nil, err
		}
		slot, err := page.Slot(int(rowId.RowNumber()))
		if err != nil {
			return RowId{}, nil, nil, newIntegrityError(err.Error())
		}
		if slot.Deleted {
			return RowId{}, nil, nil, newIntegrityError(fmt.Sprintf("%v refers to a deleted row", rowId))
		}
		if !slot.Overflow {
			return rowId, buf, page, nil
		}
		target, targetRow, err := page.OverflowTarget(int(rowId.RowNumber()))
		if err != nil {
			return RowId{}, nil, nil, newIoError("resolve row", err)
		}
		rowId = NewRowId(int32(target), int32(targetRow))
	}
}

// GetRow reads the row at rowId, following a migration pointer if the
// row has moved.
func (t *Table) GetRow(rowId RowId) (*Row, error) {
	if err := t.db.checkReadable(); err != nil {
		return nil, err
	}
	actual, _, page, err := t.resolve(rowId)
	if err != nil {
		return nil, err
	}
	rowBytes, err := page.RowBytes(int(actual.RowNumber()))
	if err != nil {
		return nil, newIoError("read row", err)
	}
	return t.decodeRow(rowBytes)
}

func (t *Table) decodeRow(rowBytes []byte) (*Row, error) {
	values, err := rowdata.DecodeRow(t.db.format, t.cols, rowBytes, t.lvs)
	if err != nil {
		return nil, newIoError("decode row", err)
	}
	row := NewRow()
	for i, c := range t.cols {
		row.Set(c.Name, values[i])
	}
	return row, nil
}

// UpdateRow overlays row's columns onto the stored record at rowId.
// A record that still fits its slot is rewritten in place; one that
// grew migrates to another page behind an overflow pointer, which the
// indexes observe as a delete-then-insert.
func (t *Table) UpdateRow(rowId RowId, row *Row) (RowId, error) {
	if err := t.db.checkWritable(); err != nil {
		return RowId{}, err
	}
	for _, name := range row.Names() {
		if t.columnByName(name) == nil {
			return RowId{}, newSchemaError(fmt.Sprintf("table %q has no column %q", t.name, name), nil)
		}
	}

	var finalId RowId
	err := t.db.guardWrite("update row", func() error {
		actual, pageBuf, page, err := t.resolve(rowId)
		if err != nil {
			return err
		}
		oldBytes, err := page.RowBytes(int(actual.RowNumber()))
		if err != nil {
			return newIoError("read row", err)
		}
		oldValues, err := rowdata.DecodeRow(t.db.format, t.cols, oldBytes, t.lvs)
		if err != nil {
			return newIoError("decode row", err)
		}
		oldLvPages, err := rowdata.LongValuePagesOf(t.db.format, t.cols, oldBytes, t.lvs)
		if err != nil {
			return newIoError("enumerate long values", err)
		}

		oldMap := make(map[string]any, len(t.cols))
		newMap := make(map[string]any, len(t.cols))
		for i, c := range t.cols {
			oldMap[c.Name] = oldValues[i]
			if v, ok := row.Get(c.Name); ok {
				newMap[c.Name] = v
			} else {
				newMap[c.Name] = oldValues[i]
			}
		}

		if err := t.checkUniqueness(newMap, actual); err != nil {
			return err
		}

		slot, err := page.Slot(int(actual.RowNumber()))
		if err != nil {
			return newIoError("read row", err)
		}
		slotSize := slot.End - slot.Offset

		newBytes, lvPages, err := rowdata.EncodeRow(t.db.format, t.cols, newMap, t.lvs, 0)
		if err != nil {
			return newIoError("encode row", err)
		}
		migrated := len(newBytes) > slotSize
		if !migrated {
			newBytes, err = rowdata.PadRow(t.db.format, len(t.cols), newBytes, slotSize)
			if err != nil {
				return newIoError("encode row", err)
			}
		}

		if migrated {
			newId, newBuf, newPage, err := t.placeRow(newBytes)
			if err != nil {
				return err
			}
			if err := t.db.channel.WritePage(newBuf, uint32(newId.PageNumber())); err != nil {
				return newIoError("write data page", err)
			}
			if uint32(newId.PageNumber()) == uint32(actual.PageNumber()) {
				// The record stayed on its own page; the buffer placeRow
				// just wrote is the current image, not the one loaded
				// before the move.
				pageBuf, page = newBuf, newPage
			}
			if err := page.MakeOverflow(int(actual.RowNumber()), uint32(newId.PageNumber()), uint16(newId.RowNumber())); err != nil {
				return newIoError("write overflow pointer", err)
			}
			if err := t.db.channel.WritePage(pageBuf, uint32(actual.PageNumber())); err != nil {
				return newIoError("write data page", err)
			}
			t.db.log.RowMigrated(t.name, uint32(actual.PageNumber()), int(actual.RowNumber()),
				uint32(newId.PageNumber()), int(newId.RowNumber()))
			finalId = newId
		} else {
			if err := page.UpdateRow(int(actual.RowNumber()), newBytes); err != nil {
				return newIoError("update row", err)
			}
			if err := t.db.channel.WritePage(pageBuf, uint32(actual.PageNumber())); err != nil {
				return newIoError("write data page", err)
			}
			finalId = actual
		}

		for _, n := range lvPages {
			if err := t.usedMap.AddPageNumber(n); err != nil {
				return newIoError("record long-value page", err)
			}
		}
		for _, n := range oldLvPages {
			if err := t.usedMap.RemovePageNumber(n); err != nil {
				return newIoError("release long-value page", err)
			}
			if err := t.freeMap.AddPageNumber(n); err != nil {
				return newIoError("release long-value page", err)
			}
		}

		// Index maintenance: the old entries leave, the new arrive with
		// the (possibly unchanged) RowId.
		for _, ix := range t.indexes {
			if err := ix.DeleteRow(oldMap, uint32(actual.PageNumber()), byte(actual.RowNumber())); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return newIoError("unindex row", err)
			}
		}
		if err := t.addIndexEntries(newMap, finalId); err != nil {
			return err
		}

		if err := t.persistDefinition(); err != nil {
			return err
		}
		return t.db.maybeFlush()
	})
	if err != nil {
		return RowId{}, err
	}
	return finalId, nil
}

// checkUniqueness probes every unique index for an existing entry with
// newMap's key and a RowId other than self.
func (t *Table) checkUniqueness(newMap map[string]any, self RowId) error {
	for _, ix := range t.indexes {
		if !ix.IsUnique() {
			continue
		}
		values, ok := index.ConstructIndexValues(ix.Data().Columns(), newMap)
		if !ok {
			continue
		}
		// Multiple all-null keys are tolerated even under unique.
		nonNull := false
		for _, v := range values {
			if v != nil {
				nonNull = true
				break
			}
		}
		if !nonNull {
			continue
		}
		cursor, err := ix.Cursor(values, true, values, true)
		if err != nil {
			return newIoError("probe unique index", err)
		}
		for {
			e, ok, err := cursor.Next()
			if err != nil {
				return newIoError("probe unique index", err)
			}
			if !ok {
				break
			}
			if e.PageNumber != uint32(self.PageNumber()) || e.RowNumber != byte(self.RowNumber()) {
				return newIntegrityError(fmt.Sprintf("duplicate key on unique index %q", ix.Name()))
			}
		}
	}
	return nil
}

// DeleteRow logically deletes the row at rowId. Long-value pages move
// from the table's used map to its free map; data-page space is not
// reclaimed.
func (t *Table) DeleteRow(rowId RowId) error {
	if err := t.db.checkWritable(); err != nil {
		return err
	}
	return t.db.guardWrite("delete row", func() error {
		actual, pageBuf, page, err := t.resolve(rowId)
		if err != nil {
			return err
		}
		rowBytes, err := page.RowBytes(int(actual.RowNumber()))
		if err != nil {
			return newIoError("read row", err)
		}
		values, err := rowdata.DecodeRow(t.db.format, t.cols, rowBytes, t.lvs)
		if err != nil {
			return newIoError("decode row", err)
		}
		lvPages, err := rowdata.LongValuePagesOf(t.db.format, t.cols, rowBytes, t.lvs)
		if err != nil {
			return newIoError("enumerate long values", err)
		}

		if err := page.DeleteRow(int(actual.RowNumber())); err != nil {
			return newIoError("delete row", err)
		}
		if err := t.db.channel.WritePage(pageBuf, uint32(actual.PageNumber())); err != nil {
			return newIoError("write data page", err)
		}

		for _, n := range lvPages {
			if err := t.usedMap.RemovePageNumber(n); err != nil {
				return newIoError("release long-value page", err)
			}
			if err := t.freeMap.AddPageNumber(n); err != nil {
				return newIoError("release long-value page", err)
			}
		}

		valueMap := make(map[string]any, len(t.cols))
		for i, c := range t.cols {
			valueMap[c.Name] = values[i]
		}
		for _, ix := range t.indexes {
			if err := ix.DeleteRow(valueMap, uint32(actual.PageNumber()), byte(actual.RowNumber())); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return newIoError("unindex row", err)
			}
		}

		t.rowCount--
		if err := t.persistDefinition(); err != nil {
			return err
		}
		return t.db.maybeFlush()
	})
}

// RowIterator walks a table's live rows in data-page order (which is
// insertion order for rows that never migrated). The iterator reads
// through a page holder, so re-visiting the current page costs nothing.
type RowIterator struct {
	t       *Table
	pages   usagemap.Iterator
	holder  *pagestore.PageHolder
	page    *rowdata.Page
	pageNum uint32
	rowNum  int
}

// Rows returns an iterator over the table's live rows.
func (t *Table) Rows() *RowIterator {
	return &RowIterator{
		t:      t,
		pages:  t.usedMap.Forward(),
		holder: pagestore.NewPageHolder(t.db.channel, pagestore.NewHardBufferHolder(t.db.format.PageSize)),
	}
}

// Next returns the next row and its RowId; ok is false when the table
// is exhausted.
func (it *RowIterator) Next() (*Row, RowId, bool, error) {
	for {
		if it.page == nil {
			pageNum, ok := it.pages.Next()
			if !ok {
				return nil, RowId{}, false, nil
			}
			buf, err := it.holder.SetPage(pageNum)
			if err != nil {
				return nil, RowId{}, false, newIoError("read page", err)
			}
			if buf[it.t.db.format.OffsetPageType] != byte(jetformat.PageTypeData) {
				// Index, long-value, and declaration pages share the
				// used map with data pages; skip them.
				continue
			}
			page, err := rowdata.OnPage(buf, it.t.db.format)
			if err != nil {
				return nil, RowId{}, false, newIoError("read page", err)
			}
			it.page, it.pageNum, it.rowNum = page, pageNum, 0
		}

		for it.rowNum < it.page.RowCount() {
			rowNum := it.rowNum
			it.rowNum++
			slot, err := it.page.Slot(rowNum)
			if err != nil {
				return nil, RowId{}, false, newIoError("read row", err)
			}
			if slot.Deleted || slot.Overflow {
				// A migrated record is yielded at its new location.
				continue
			}
			rowBytes, err := it.page.RowBytes(rowNum)
			if err != nil {
				return nil, RowId{}, false, newIoError("read row", err)
			}
			row, err := it.t.decodeRow(rowBytes)
			if err != nil {
				return nil, RowId{}, false, err
			}
			return row, NewRowId(int32(it.pageNum), int32(rowNum)), true, nil
		}
		it.page = nil
	}
}
