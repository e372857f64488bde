package jetcore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func createMemDatabase(t *testing.T, ff FileFormat) (*Database, ByteChannel) {
	t.Helper()
	ch := NewMemChannel()
	db, err := Create("", CreateOptions{FileFormat: ff, Channel: ch})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return db, ch
}

func numericTextColumns() []*Column {
	return []*Column{
		{Name: "a", Type: Long},
		{Name: "b", Type: Text, Length: 50},
	}
}

func TestCreateInsertReadBack(t *testing.T) {
	db, ch := createMemDatabase(t, FileFormatGeneral)

	tbl, err := db.CreateTable("T", numericTextColumns(), nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rows := []struct {
		a int32
		b string
	}{{1, "alpha"}, {2, "Beta"}, {3, "gamma"}}
	for _, r := range rows {
		if _, err := tbl.AddRow(NewRow().Set("a", r.a).Set("b", r.b)); err != nil {
			t.Fatalf("AddRow(%d): %v", r.a, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open("", OpenOptions{Channel: ch})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	tbl, err = reopened.Table("T")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if tbl.GetRowCount() != 3 {
		t.Fatalf("GetRowCount = %d, want 3", tbl.GetRowCount())
	}

	it := tbl.Rows()
	for i, want := range rows {
		row, _, ok, err := it.Next()
		if err != nil || !ok {
			t.Fatalf("row %d: Next = (%v, %v)", i, ok, err)
		}
		a, _ := row.Get("a")
		b, _ := row.Get("b")
		if a.(int32) != want.a || b.(string) != want.b {
			t.Fatalf("row %d = (%v, %v), want (%d, %q)", i, a, b, want.a, want.b)
		}
		// Insertion order survives the round trip, column-wise too.
		if names := row.Names(); names[0] != "a" || names[1] != "b" {
			t.Fatalf("column order = %v", names)
		}
	}
	if _, _, ok, _ := it.Next(); ok {
		t.Fatalf("expected exactly three rows")
	}
}

func TestTextIndexOrderingAndCaseCollapse(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatLegacy)
	defer db.Close()

	tbl, err := db.CreateTable("Words", []*Column{{Name: "w", Type: Text, Length: 50}},
		[]IndexDef{{Name: "ByWord", Unique: true, Columns: []IndexColumnDef{{Name: "w"}}}})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for _, s := range []string{"banana", "Apple", "cherry"} {
		if _, err := tbl.AddRow(NewRow().Set("w", s)); err != nil {
			t.Fatalf("AddRow(%q): %v", s, err)
		}
	}

	_, err = tbl.AddRow(NewRow().Set("w", "apple"))
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("case-folded duplicate should fail with IntegrityError, got %v", err)
	}
	if tbl.GetRowCount() != 3 {
		t.Fatalf("failed insert should leave the row count at 3, got %d", tbl.GetRowCount())
	}

	cursor, err := tbl.Index("ByWord").Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	var got []string
	for {
		e, ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		row, err := tbl.GetRow(NewRowId(int32(e.PageNumber), int32(e.RowNumber)))
		if err != nil {
			t.Fatalf("GetRow: %v", err)
		}
		w, _ := row.Get("w")
		got = append(got, w.(string))
	}
	want := []string{"Apple", "banana", "cherry"}
	if len(got) != len(want) {
		t.Fatalf("traversal = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("traversal = %v, want %v", got, want)
		}
	}
}

func TestLongValueLifecycle(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	tbl, err := db.CreateTable("Docs", []*Column{
		{Name: "id", Type: Long},
		{Name: "body", Type: Memo},
	}, nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	body := strings.Repeat("m", 20000)
	rowId, err := tbl.AddRow(NewRow().Set("id", int32(1)).Set("body", body))
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}

	row, err := tbl.GetRow(rowId)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	got, _ := row.Get("body")
	if got.(string) != body {
		t.Fatalf("memo round trip lost content (%d bytes back)", len(got.(string)))
	}

	// Long-value pages sit in the used map until the row is deleted,
	// then move to the free map.
	var lvPages []uint32
	usedBefore := tbl.usedMap
	it := usedBefore.Forward()
	buf := db.channel.CreatePageBuffer()
	for {
		n, ok := it.Next()
		if !ok {
			break
		}
		if err := db.channel.ReadPage(buf, n); err != nil {
			t.Fatalf("ReadPage(%d): %v", n, err)
		}
		if buf[0] == 0x05 {
			lvPages = append(lvPages, n)
		}
	}
	if len(lvPages) == 0 {
		t.Fatalf("expected long-value pages in the used map")
	}

	if err := tbl.DeleteRow(rowId); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	for _, n := range lvPages {
		if tbl.usedMap.Contains(n) {
			t.Errorf("page %d still in the used map after delete", n)
		}
		if !tbl.freeMap.Contains(n) {
			t.Errorf("page %d missing from the free map after delete", n)
		}
	}
	if tbl.GetRowCount() != 0 {
		t.Fatalf("GetRowCount = %d after delete", tbl.GetRowCount())
	}
	if _, err := tbl.GetRow(rowId); err == nil {
		t.Fatalf("reading a deleted row should fail")
	}
}

func TestUpdateRowInPlaceAndMigrated(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	tbl, err := db.CreateTable("T", numericTextColumns(),
		[]IndexDef{{Name: "ByA", Unique: true, Columns: []IndexColumnDef{{Name: "a"}}}})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rowId, err := tbl.AddRow(NewRow().Set("a", int32(1)).Set("b", "a reasonably sized value"))
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}

	// Shrinking rewrites in place: the RowId is unchanged.
	sameId, err := tbl.UpdateRow(rowId, NewRow().Set("b", "tiny"))
	if err != nil {
		t.Fatalf("UpdateRow shrink: %v", err)
	}
	if !sameId.Equal(rowId) {
		t.Fatalf("in-place update moved the row: %v -> %v", rowId, sameId)
	}
	row, err := tbl.GetRow(rowId)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if b, _ := row.Get("b"); b.(string) != "tiny" {
		t.Fatalf("b = %v after shrink", b)
	}

	// Growing migrates; the old RowId still resolves via the pointer.
	grown := strings.Repeat("g", 1500)
	newId, err := tbl.UpdateRow(rowId, NewRow().Set("b", grown))
	if err != nil {
		t.Fatalf("UpdateRow grow: %v", err)
	}
	if newId.Equal(rowId) {
		t.Fatalf("a grown row should migrate to a new RowId")
	}
	row, err = tbl.GetRow(rowId)
	if err != nil {
		t.Fatalf("GetRow via old RowId: %v", err)
	}
	if b, _ := row.Get("b"); b.(string) != grown {
		t.Fatalf("grown value lost after migration")
	}
	// The index sees exactly one entry, at the new location.
	cursor, err := tbl.Index("ByA").Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	count := 0
	for {
		e, ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
		if e.PageNumber != uint32(newId.PageNumber()) || e.RowNumber != byte(newId.RowNumber()) {
			t.Fatalf("index entry points at (%d, %d), want %v", e.PageNumber, e.RowNumber, newId)
		}
	}
	if count != 1 {
		t.Fatalf("index holds %d entries, want 1", count)
	}

	// Iteration yields the row once, not once per location.
	it := tbl.Rows()
	seen := 0
	for {
		_, _, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen++
	}
	if seen != 1 {
		t.Fatalf("iteration yielded %d rows, want 1", seen)
	}
}

func TestUniqueUpdateConflict(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	tbl, err := db.CreateTable("T", numericTextColumns(),
		[]IndexDef{{Name: "ByA", Unique: true, Columns: []IndexColumnDef{{Name: "a"}}}})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := tbl.AddRow(NewRow().Set("a", int32(1)).Set("b", "x")); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	second, err := tbl.AddRow(NewRow().Set("a", int32(2)).Set("b", "y"))
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	_, err = tbl.UpdateRow(second, NewRow().Set("a", int32(1)))
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("conflicting update should fail with IntegrityError, got %v", err)
	}
	// Updating a row over its own key is not a conflict.
	if _, err := tbl.UpdateRow(second, NewRow().Set("a", int32(2)).Set("b", "z")); err != nil {
		t.Fatalf("self-keyed update: %v", err)
	}
}

func TestInMemoryChannelMirrorsDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	db, err := Create(path, CreateOptions{FileFormat: FileFormatGeneral})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tbl, err := db.CreateTable("T", numericTextColumns(), nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int32(0); i < 40; i++ {
		if _, err := tbl.AddRow(NewRow().Set("a", i).Set("b", strings.Repeat("v", int(i)))); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	collect := func(db *Database) []string {
		t.Helper()
		tbl, err := db.Table("T")
		if err != nil {
			t.Fatalf("Table: %v", err)
		}
		var out []string
		it := tbl.Rows()
		for {
			row, _, ok, err := it.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				return out
			}
			a, _ := row.Get("a")
			b, _ := row.Get("b")
			out = append(out, fmt.Sprintf("%d|%s", a, b))
		}
	}

	onDisk, err := Open(path, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open on disk: %v", err)
	}
	diskRows := collect(onDisk)
	onDisk.Close()

	// Load the same bytes into the in-memory channel, page-aligned.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	mc := NewMemChannel()
	for pos := 0; pos < len(raw); pos += 4096 {
		end := pos + 4096
		if end > len(raw) {
			end = len(raw)
		}
		if err := mc.WriteAt(int64(pos), raw[pos:end]); err != nil {
			t.Fatalf("WriteAt: %v", err)
		}
	}
	inMem, err := Open("", OpenOptions{Channel: mc})
	if err != nil {
		t.Fatalf("Open in memory: %v", err)
	}
	memRows := collect(inMem)
	inMem.Close()

	if len(diskRows) != len(memRows) {
		t.Fatalf("disk run has %d rows, memory run %d", len(diskRows), len(memRows))
	}
	for i := range diskRows {
		if diskRows[i] != memRows[i] {
			t.Fatalf("row %d differs: %q vs %q", i, diskRows[i], memRows[i])
		}
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	db, err := Create(path, CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.CreateTable("T", numericTextColumns(), nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	db.Close()

	ro, err := Open(path, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ro.Close()
	tbl, err := ro.Table("T")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	var state *StateError
	if _, err := tbl.AddRow(NewRow().Set("a", int32(1))); !errors.As(err, &state) {
		t.Fatalf("expected StateError on read-only write, got %v", err)
	}
}

func TestDoubleCloseIsStateError(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var state *StateError
	if err := db.Close(); !errors.As(err, &state) {
		t.Fatalf("expected StateError on double close, got %v", err)
	}
}

func TestSchemaValidation(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	var schema *SchemaError
	if _, err := db.CreateTable("", numericTextColumns(), nil); !errors.As(err, &schema) {
		t.Errorf("empty table name: got %v", err)
	}
	if _, err := db.CreateTable("T", []*Column{{Name: "a", Type: Long}, {Name: "a", Type: Long}}, nil); !errors.As(err, &schema) {
		t.Errorf("duplicate column: got %v", err)
	}
	if _, err := db.CreateTable("T", numericTextColumns(), []IndexDef{
		{Name: "Bad", Columns: []IndexColumnDef{{Name: "missing"}}},
	}); !errors.As(err, &schema) {
		t.Errorf("unknown index column: got %v", err)
	}
	if _, err := db.CreateTable("T", numericTextColumns(), nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := db.CreateTable("T", numericTextColumns(), nil); !errors.As(err, &schema) {
		t.Errorf("duplicate table: got %v", err)
	}
	if _, err := db.Table("Nope"); !errors.As(err, &schema) {
		t.Errorf("missing table: got %v", err)
	}
}

func TestWriteGuardBatchesFlushes(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	tbl, err := db.CreateTable("T", numericTextColumns(), nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	db.StartWrite()
	db.StartWrite() // nesting is reference-counted
	for i := int32(0); i < 10; i++ {
		if _, err := tbl.AddRow(NewRow().Set("a", i)); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	if err := db.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}
	if err := db.FinishWrite(); err != nil {
		t.Fatalf("FinishWrite: %v", err)
	}
	if tbl.GetRowCount() != 10 {
		t.Fatalf("GetRowCount = %d", tbl.GetRowCount())
	}
}

func TestRelationshipFlags(t *testing.T) {
	rel, err := NewRelationship("FK", "Orders", "Customers",
		[]string{"customer_id"}, []string{"id"},
		relReferentialIntegrity|relCascadeDeletes|relLeftOuterJoin)
	if err != nil {
		t.Fatalf("NewRelationship: %v", err)
	}
	if !rel.HasReferentialIntegrity() || !rel.CascadesDeletes() || !rel.IsLeftOuterJoin() {
		t.Errorf("set flags not reported: %08x", rel.Flags())
	}
	if rel.IsOneToOne() || rel.CascadesUpdates() || rel.IsRightOuterJoin() {
		t.Errorf("unset flags reported: %08x", rel.Flags())
	}
	if _, err := NewRelationship("bad", "A", "B", []string{"x"}, nil, 0); err == nil {
		t.Errorf("misaligned column lists should fail")
	}
}

func TestRelationshipPersistence(t *testing.T) {
	db, ch := createMemDatabase(t, FileFormatGeneral)
	if _, err := db.CreateTable("Customers", []*Column{{Name: "id", Type: Long}}, nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := db.CreateTable("Orders", []*Column{{Name: "customer_id", Type: Long}}, nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	rel, err := NewRelationship("OrdersCustomers", "Orders", "Customers",
		[]string{"customer_id"}, []string{"id"}, relReferentialIntegrity)
	if err != nil {
		t.Fatalf("NewRelationship: %v", err)
	}
	if err := db.CreateRelationship(rel); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}
	// An unknown table is a schema error.
	bad, _ := NewRelationship("Bad", "Orders", "Nope", []string{"a"}, []string{"b"}, 0)
	var schema *SchemaError
	if err := db.CreateRelationship(bad); !errors.As(err, &schema) {
		t.Fatalf("unknown table: got %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open("", OpenOptions{Channel: ch})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	rels := reopened.Relationships()
	if len(rels) != 1 {
		t.Fatalf("reopened %d relationships, want 1", len(rels))
	}
	got := rels[0]
	if got.Name() != "OrdersCustomers" || got.FromTable() != "Orders" || got.ToTable() != "Customers" {
		t.Fatalf("relationship round trip: %v %v %v", got.Name(), got.FromTable(), got.ToTable())
	}
	if !got.HasReferentialIntegrity() || got.CascadesDeletes() {
		t.Fatalf("flags round trip: %08x", got.Flags())
	}
	if cols := got.FromColumns(); len(cols) != 1 || cols[0] != "customer_id" {
		t.Fatalf("from columns round trip: %v", cols)
	}
}

func TestRowsSpanMultiplePages(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	tbl, err := db.CreateTable("Big", numericTextColumns(), nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	const count = 600
	filler := strings.Repeat("f", 120)
	for i := int32(0); i < count; i++ {
		if _, err := tbl.AddRow(NewRow().Set("a", i).Set("b", filler)); err != nil {
			t.Fatalf("AddRow(%d): %v", i, err)
		}
	}
	if tbl.GetRowCount() != count {
		t.Fatalf("GetRowCount = %d, want %d", tbl.GetRowCount(), count)
	}
	it := tbl.Rows()
	next := int32(0)
	for {
		row, _, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		a, _ := row.Get("a")
		if a.(int32) != next {
			t.Fatalf("row %d out of insertion order (got %v)", next, a)
		}
		next++
	}
	if next != count {
		t.Fatalf("iterated %d rows, want %d", next, count)
	}
}

func TestBinaryAndGUIDRoundTrip(t *testing.T) {
	db, _ := createMemDatabase(t, FileFormatGeneral)
	defer db.Close()

	tbl, err := db.CreateTable("Blobs", []*Column{
		{Name: "id", Type: GUID},
		{Name: "data", Type: Binary, Length: 255},
	}, nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	rowId, err := tbl.AddRow(NewRow().
		Set("id", "12345678-9abc-def0-1234-56789abcdef0").
		Set("data", payload))
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	row, err := tbl.GetRow(rowId)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	data, _ := row.Get("data")
	if !bytes.Equal(data.([]byte), payload) {
		t.Fatalf("binary round trip: %x", data)
	}
}
