package jetcore

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/index"
	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/rowdata"
	"github.com/ambermdb/jetcore/internal/usagemap"
)

// Table-definition page layout: a small fixed header naming the row
// count, the newest data page, and the two usage-map declaration
// pages, followed by the serialized column and index declarations.
const (
	tdOffsetRowCount    = 4
	tdOffsetLastData    = 8
	tdOffsetUsedDecl    = 12
	tdOffsetFreeDecl    = 16
	tdOffsetColumnCount = 20
	tdOffsetIndexCount  = 22
	tdOffsetBody        = 24
)

// Column flag bits in the serialized form.
const colFlagAutoNumber = 0x01

// Index flag bits in the serialized form.
const (
	idxFlagUnique      = 0x01
	idxFlagIgnoreNulls = 0x02
)

// IndexColumnDef names one column of an index declaration.
type IndexColumnDef struct {
	Name       string
	Descending bool
}

// IndexDef declares a logical index at table-creation time. Two
// declarations with identical column lists and constraints share one
// physical tree.
type IndexDef struct {
	Name        string
	Type        IndexType
	Unique      bool
	IgnoreNulls bool
	Columns     []IndexColumnDef
}

func validIdentifier(name string, max int) error {
	if name == "" {
		return newSchemaError("empty identifier", nil)
	}
	if len(name) > max {
		return newSchemaError(fmt.Sprintf("identifier %q exceeds %d bytes", name, max), nil)
	}
	for _, r := range name {
		if r < 0x20 {
			return newSchemaError(fmt.Sprintf("identifier %q contains a control character", name), nil)
		}
	}
	return nil
}

// CreateTable validates and persists a new table definition and
// returns the open table. Column collation, charset, and date-time
// settings are injected from the database's configuration.
func (db *Database) CreateTable(name string, cols []*Column, indexes []IndexDef) (*Table, error) {
	if err := db.checkWritable(); err != nil {
		return nil, err
	}
	if err := validIdentifier(name, db.format.MaxTableNameLength); err != nil {
		return nil, err
	}
	if _, exists := db.dir[name]; exists {
		return nil, newSchemaError(fmt.Sprintf("table %q already exists", name), nil)
	}
	if len(cols) == 0 {
		return nil, newSchemaError("a table needs at least one column", nil)
	}
	if len(cols) > db.format.MaxColumnsPerTable {
		return nil, newSchemaError(fmt.Sprintf("%d columns exceed the %d-column ceiling", len(cols), db.format.MaxColumnsPerTable), nil)
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if err := validIdentifier(c.Name, db.format.MaxTableNameLength); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, newSchemaError(fmt.Sprintf("duplicate column %q", c.Name), nil)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return nil, newUnsupportedTypeError(c.Type.String())
		}
		db.adoptColumn(c)
	}
	for _, def := range indexes {
		if err := validIdentifier(def.Name, db.format.MaxTableNameLength); err != nil {
			return nil, err
		}
		if len(def.Columns) == 0 {
			return nil, newSchemaError(fmt.Sprintf("index %q has no columns", def.Name), nil)
		}
		for _, ic := range def.Columns {
			if !seen[ic.Name] {
				return nil, newSchemaError(fmt.Sprintf("index %q names unknown column %q", def.Name, ic.Name), nil)
			}
		}
	}

	var t *Table
	err := db.guardWrite("create table", func() error {
		defPage, err := db.channel.AllocateNewPage()
		if err != nil {
			return newIoError("allocate table definition", err)
		}
		usedDecl, usedMap, err := db.newMapDeclPage()
		if err != nil {
			return err
		}
		freeDecl, freeMap, err := db.newMapDeclPage()
		if err != nil {
			return err
		}

		t = &Table{
			db:        db,
			name:      name,
			defPage:   defPage,
			cols:      cols,
			indexDefs: append([]IndexDef(nil), indexes...),
			usedMap:   usedMap,
			freeMap:   freeMap,
			usedDecl:  usedDecl,
			freeDecl:  freeDecl,
			lvs:       rowdata.NewLongValueStore(db.channel, db.format),
		}
		if err := t.createIndexes(); err != nil {
			return err
		}
		t.registerIndexAllocations()
		if err := t.persistDefinition(); err != nil {
			return err
		}

		db.dir[name] = defPage
		db.dirOrder = append(db.dirOrder, name)
		if err := db.writeHeader(); err != nil {
			return err
		}
		return db.maybeFlush()
	})
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	db.log.TableCreated(name, t.defPage)
	return t, nil
}

// adoptColumn injects the database-level text, charset, and date-time
// configuration into a caller-supplied column declaration.
func (db *Database) adoptColumn(c *Column) {
	c.Collation = db.collation()
	if db.charset != nil {
		c.Encoding = db.charset
	}
	if db.timeZone != nil {
		c.TimeZone = db.timeZone
	}
	c.DateTimeKind = db.dtMode
}

// newMapDeclPage allocates and formats a usage-map declaration page
// holding one reference usage map.
func (db *Database) newMapDeclPage() (uint32, usagemap.UsageMap, error) {
	pageNum, err := db.channel.AllocateNewPage()
	if err != nil {
		return 0, nil, newIoError("allocate usage map declaration", err)
	}
	buf := db.channel.CreatePageBuffer()
	buf[db.format.OffsetPageType] = byte(jetformat.PageTypeMapDecl)
	if err := db.channel.WritePage(buf, pageNum); err != nil {
		return 0, nil, newIoError("write usage map declaration", err)
	}
	decl, err := usagemap.LoadDeclaration(db.channel, pageNum, 1)
	if err != nil {
		return 0, nil, newIoError("load usage map declaration", err)
	}
	m, err := usagemap.NewReference(db.channel, decl, db.format)
	if err != nil {
		return 0, nil, newIoError("format usage map", err)
	}
	return pageNum, m, nil
}

func (db *Database) openMapDeclPage(pageNum uint32) (usagemap.UsageMap, error) {
	decl, err := usagemap.LoadDeclaration(db.channel, pageNum, 1)
	if err != nil {
		return nil, newIoError("load usage map declaration", err)
	}
	m, err := usagemap.Open(db.channel, decl, db.format)
	if err != nil {
		return nil, newIoError("open usage map", err)
	}
	return m, nil
}

// indexSignature identifies physically shareable index declarations.
func indexSignature(def IndexDef) string {
	sig := fmt.Sprintf("u=%v/in=%v", def.Unique, def.IgnoreNulls)
	for _, ic := range def.Columns {
		sig += fmt.Sprintf("/%s:%v", ic.Name, ic.Descending)
	}
	return sig
}

// createIndexes builds the logical indexes, sharing one IndexData
// between declarations with identical signatures.
func (t *Table) createIndexes() error {
	shared := make(map[string]*index.IndexData)
	for i, def := range t.indexDefs {
		data, ok := shared[indexSignature(def)]
		if !ok {
			cols, err := t.indexColumns(def)
			if err != nil {
				return err
			}
			data, err = index.CreateIndexData(t.db.channel, t.db.format, cols, def.Unique, def.IgnoreNulls)
			if err != nil {
				return newIoError("create index", err)
			}
			if err := t.usedMap.AddPageNumber(data.RootPage()); err != nil {
				return newIoError("record index root", err)
			}
			shared[indexSignature(def)] = data
		}
		t.indexes = append(t.indexes, index.NewIndex(def.Name, i, def.Type, data))
	}
	return nil
}

func (t *Table) indexColumns(def IndexDef) ([]index.IndexColumn, error) {
	cols := make([]index.IndexColumn, 0, len(def.Columns))
	for _, ic := range def.Columns {
		col := t.columnByName(ic.Name)
		if col == nil {
			return nil, newSchemaError(fmt.Sprintf("index %q names unknown column %q", def.Name, ic.Name), nil)
		}
		cols = append(cols, index.IndexColumn{Column: col, Descending: ic.Descending})
	}
	return cols, nil
}

// persistDefinition serializes the table's metadata onto its
// definition page.
func (t *Table) persistDefinition() error {
	db := t.db
	buf := db.channel.CreatePageBuffer()
	order := db.format.ByteOrder()

	buf[db.format.OffsetPageType] = byte(jetformat.PageTypeTableDef)
	order.PutUint32(buf[tdOffsetRowCount:], t.rowCount)
	order.PutUint32(buf[tdOffsetLastData:], t.lastDataPage)
	order.PutUint32(buf[tdOffsetUsedDecl:], t.usedDecl)
	order.PutUint32(buf[tdOffsetFreeDecl:], t.freeDecl)
	order.PutUint16(buf[tdOffsetColumnCount:], uint16(len(t.cols)))
	order.PutUint16(buf[tdOffsetIndexCount:], uint16(len(t.indexDefs)))

	pos := tdOffsetBody
	fit := func(n int) error {
		if pos+n > len(buf) {
			return newSchemaError("table definition overflows its page", nil)
		}
		return nil
	}
	for _, c := range t.cols {
		if err := fit(8 + len(c.Name)); err != nil {
			return err
		}
		buf[pos] = byte(c.Type)
		var flags byte
		if c.AutoNumber {
			flags |= colFlagAutoNumber
		}
		buf[pos+1] = flags
		order.PutUint16(buf[pos+2:], c.Length)
		buf[pos+4] = c.Scale
		buf[pos+5] = c.Precision
		order.PutUint16(buf[pos+6:], uint16(len(c.Name)))
		pos += 8
		copy(buf[pos:], c.Name)
		pos += len(c.Name)
	}
	for i, def := range t.indexDefs {
		if err := fit(10 + len(def.Name) + 3*len(def.Columns)); err != nil {
			return err
		}
		buf[pos] = byte(def.Type)
		var flags byte
		if def.Unique {
			flags |= idxFlagUnique
		}
		if def.IgnoreNulls {
			flags |= idxFlagIgnoreNulls
		}
		buf[pos+1] = flags
		order.PutUint32(buf[pos+2:], t.indexes[i].Data().RootPage())
		order.PutUint16(buf[pos+6:], uint16(len(def.Name)))
		pos += 8
		copy(buf[pos:], def.Name)
		pos += len(def.Name)
		order.PutUint16(buf[pos:], uint16(len(def.Columns)))
		pos += 2
		for _, ic := range def.Columns {
			idx := t.columnIndex(ic.Name)
			order.PutUint16(buf[pos:], uint16(idx))
			if ic.Descending {
				buf[pos+2] = 1
			}
			pos += 3
		}
	}

	if err := db.channel.WritePage(buf, t.defPage); err != nil {
		return newIoError("write table definition", err)
	}
	return nil
}

// Table opens (or returns the already-open) table by name.
func (db *Database) Table(name string) (*Table, error) {
	if err := db.checkReadable(); err != nil {
		return nil, err
	}
	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	defPage, ok := db.dir[name]
	if !ok {
		return nil, newSchemaError(fmt.Sprintf("no table %q", name), nil)
	}
	t, err := db.loadTable(name, defPage)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	return t, nil
}

func (db *Database) loadTable(name string, defPage uint32) (*Table, error) {
	buf := db.channel.CreatePageBuffer()
	if err := db.channel.ReadPage(buf, defPage); err != nil {
		return nil, newIoError("read table definition", err)
	}
	if buf[db.format.OffsetPageType] != byte(jetformat.PageTypeTableDef) {
		return nil, newIoError("read table definition",
			fmt.Errorf("page %d type byte 0x%02x is not a table definition", defPage, buf[db.format.OffsetPageType]))
	}
	order := db.format.ByteOrder()

	t := &Table{
		db:           db,
		name:         name,
		defPage:      defPage,
		rowCount:     order.Uint32(buf[tdOffsetRowCount:]),
		lastDataPage: order.Uint32(buf[tdOffsetLastData:]),
		usedDecl:     order.Uint32(buf[tdOffsetUsedDecl:]),
		freeDecl:     order.Uint32(buf[tdOffsetFreeDecl:]),
		lvs:          rowdata.NewLongValueStore(db.channel, db.format),
	}
	colCount := int(order.Uint16(buf[tdOffsetColumnCount:]))
	idxCount := int(order.Uint16(buf[tdOffsetIndexCount:]))

	pos := tdOffsetBody
	take := func(n int) ([]byte, error) {
		if pos+n > len(buf) {
			return nil, newIoError("read table definition", fmt.Errorf("truncated at byte %d", pos))
		}
		b := buf[pos : pos+n]
		pos += n
		return b, nil
	}
	for i := 0; i < colCount; i++ {
		head, err := take(8)
		if err != nil {
			return nil, err
		}
		nameBytes, err := take(int(order.Uint16(head[6:])))
		if err != nil {
			return nil, err
		}
		c := &Column{
			Name:       string(nameBytes),
			Type:       DataType(head[0]),
			AutoNumber: head[1]&colFlagAutoNumber != 0,
			Length:     order.Uint16(head[2:]),
			Scale:      head[4],
			Precision:  head[5],
		}
		db.adoptColumn(c)
		t.cols = append(t.cols, c)
	}

	type rawIndex struct {
		def      IndexDef
		rootPage uint32
	}
	raws := make([]rawIndex, 0, idxCount)
	for i := 0; i < idxCount; i++ {
		head, err := take(8)
		if err != nil {
			return nil, err
		}
		nameBytes, err := take(int(order.Uint16(head[6:])))
		if err != nil {
			return nil, err
		}
		countBytes, err := take(2)
		if err != nil {
			return nil, err
		}
		def := IndexDef{
			Name:        string(nameBytes),
			Type:        IndexType(head[0]),
			Unique:      head[1]&idxFlagUnique != 0,
			IgnoreNulls: head[1]&idxFlagIgnoreNulls != 0,
		}
		colN := int(order.Uint16(countBytes))
		for j := 0; j < colN; j++ {
			entry, err := take(3)
			if err != nil {
				return nil, err
			}
			colIdx := int(order.Uint16(entry))
			if colIdx >= len(t.cols) {
				return nil, newIoError("read table definition", fmt.Errorf("index column %d out of range", colIdx))
			}
			def.Columns = append(def.Columns, IndexColumnDef{
				Name:       t.cols[colIdx].Name,
				Descending: entry[2] != 0,
			})
		}
		raws = append(raws, rawIndex{def: def, rootPage: order.Uint32(head[2:])})
	}

	// Logical indexes sharing a root page share one IndexData.
	shared := make(map[uint32]*index.IndexData)
	for i, raw := range raws {
		t.indexDefs = append(t.indexDefs, raw.def)
		data, ok := shared[raw.rootPage]
		if !ok {
			cols, err := t.indexColumns(raw.def)
			if err != nil {
				return nil, err
			}
			data = index.OpenIndexData(db.channel, db.format, cols, raw.def.Unique, raw.def.IgnoreNulls, raw.rootPage)
			shared[raw.rootPage] = data
		}
		t.indexes = append(t.indexes, index.NewIndex(raw.def.Name, i, raw.def.Type, data))
	}

	usedMap, err := db.openMapDeclPage(t.usedDecl)
	if err != nil {
		return nil, err
	}
	freeMap, err := db.openMapDeclPage(t.freeDecl)
	if err != nil {
		return nil, err
	}
	t.usedMap, t.freeMap = usedMap, freeMap
	t.registerIndexAllocations()
	return t, nil
}
