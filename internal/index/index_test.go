package index

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ambermdb/jetcore/internal/codec"
	"github.com/ambermdb/jetcore/internal/coltype"
	"github.com/ambermdb/jetcore/internal/ioutil"
	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/pagestore"
	"github.com/ambermdb/jetcore/internal/textcode"
)

func newTestTree(t *testing.T, cols []IndexColumn, unique bool) *IndexData {
	t.Helper()
	f := jetformat.General()
	pc := pagestore.New(ioutil.NewMemChannel(), f.PageSize, codec.Identity{})
	if _, err := pc.AllocateNewPage(); err != nil {
		t.Fatalf("AllocateNewPage: %v", err)
	}
	d, err := CreateIndexData(pc, f, cols, unique, false)
	if err != nil {
		t.Fatalf("CreateIndexData: %v", err)
	}
	return d
}

func longIndexCols() []IndexColumn {
	return []IndexColumn{{Column: &coltype.Column{Name: "n", Type: coltype.Long}}}
}

func textIndexCols() []IndexColumn {
	return []IndexColumn{{Column: &coltype.Column{Name: "t", Type: coltype.Text, Collation: textcode.General}}}
}

func collectKeys(t *testing.T, c *EntryCursor) []Entry {
	t.Helper()
	var out []Entry
	for {
		e, ok, err := c.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func TestAddAndCursorOrder(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	for i, v := range []int32{42, -7, 0, 99, -1000, 7} {
		if err := d.AddRow([]any{v}, uint32(i+1), 0); err != nil {
			t.Fatalf("AddRow(%d): %v", v, err)
		}
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	entries := collectKeys(t, c)
	if len(entries) != 6 {
		t.Fatalf("got %d entries, want 6", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) > 0 {
			t.Fatalf("entries %d and %d out of order", i-1, i)
		}
	}
	// -1000 sorts first; its RowId page was 5.
	if entries[0].PageNumber != 5 {
		t.Fatalf("first entry RowId page = %d, want 5", entries[0].PageNumber)
	}
}

func TestSplitsAcrossManyEntries(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	const count = 2000
	for i := 0; i < count; i++ {
		// Insert in a scattered order to exercise splits on both sides.
		v := int32((i * 7919) % count)
		if err := d.AddRow([]any{v}, uint32(v/250+1), byte(v%250)); err != nil {
			t.Fatalf("AddRow(%d): %v", v, err)
		}
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	entries := collectKeys(t, c)
	if len(entries) != count {
		t.Fatalf("got %d entries, want %d", len(entries), count)
	}
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) > 0 {
			t.Fatalf("entries %d and %d out of order after splits", i-1, i)
		}
	}
}

func TestUniqueViolation(t *testing.T) {
	d := newTestTree(t, longIndexCols(), true)
	if err := d.AddRow([]any{int32(5)}, 1, 0); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if err := d.AddRow([]any{int32(5)}, 2, 0); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	// A different key is fine.
	if err := d.AddRow([]any{int32(6)}, 2, 0); err != nil {
		t.Fatalf("AddRow distinct: %v", err)
	}
}

func TestUniqueToleratesMultipleNulls(t *testing.T) {
	d := newTestTree(t, longIndexCols(), true)
	if err := d.AddRow([]any{nil}, 1, 0); err != nil {
		t.Fatalf("AddRow null: %v", err)
	}
	if err := d.AddRow([]any{nil}, 2, 0); err != nil {
		t.Fatalf("second null should be tolerated on a unique index: %v", err)
	}
}

func TestUniqueCollapsesTextCase(t *testing.T) {
	d := newTestTree(t, textIndexCols(), true)
	for i, s := range []string{"banana", "Apple", "cherry"} {
		if err := d.AddRow([]any{s}, uint32(i+1), 0); err != nil {
			t.Fatalf("AddRow(%q): %v", s, err)
		}
	}
	if err := d.AddRow([]any{"apple"}, 4, 0); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("case-folded duplicate should fail, got %v", err)
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	entries := collectKeys(t, c)
	pages := []uint32{}
	for _, e := range entries {
		pages = append(pages, e.PageNumber)
	}
	// Apple (page 2), banana (1), cherry (3).
	want := []uint32{2, 1, 3}
	for i := range want {
		if pages[i] != want[i] {
			t.Fatalf("traversal pages = %v, want %v", pages, want)
		}
	}
}

func TestDeleteRowExact(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	for i := 0; i < 10; i++ {
		if err := d.AddRow([]any{int32(i)}, 1, byte(i)); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	if err := d.DeleteRow([]any{int32(4)}, 1, 4); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	// Deleting the same entry again reports not-found.
	if err := d.DeleteRow([]any{int32(4)}, 1, 4); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if got := len(collectKeys(t, c)); got != 9 {
		t.Fatalf("got %d entries after delete, want 9", got)
	}
}

func TestCursorRangeBounds(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	for i := int32(0); i < 10; i++ {
		if err := d.AddRow([]any{i}, 1, byte(i)); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}

	tests := []struct {
		name                 string
		start, end           []any
		startIncl, endIncl   bool
		want                 []byte
	}{
		{"closed", []any{int32(3)}, []any{int32(6)}, true, true, []byte{3, 4, 5, 6}},
		{"open-start", []any{int32(3)}, []any{int32(6)}, false, true, []byte{4, 5, 6}},
		{"open-end", []any{int32(3)}, []any{int32(6)}, true, false, []byte{3, 4, 5}},
		{"unbounded-start", nil, []any{int32(2)}, true, true, []byte{0, 1, 2}},
		{"unbounded-end", []any{int32(8)}, nil, true, true, []byte{8, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := d.Cursor(tt.start, tt.startIncl, tt.end, tt.endIncl)
			if err != nil {
				t.Fatalf("Cursor: %v", err)
			}
			var got []byte
			for _, e := range collectKeys(t, c) {
				got = append(got, e.RowNumber)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("rows = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCursorReseeksAfterMutation(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	for _, v := range []int32{10, 20, 30} {
		if err := d.AddRow([]any{v}, 1, byte(v)); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	e, ok, err := c.Next()
	if err != nil || !ok || e.RowNumber != 10 {
		t.Fatalf("first Next = (%v, %v, %v)", e, ok, err)
	}

	// Mutate mid-iteration: add one entry past the cursor and one
	// before it.
	if err := d.AddRow([]any{int32(25)}, 1, 25); err != nil {
		t.Fatalf("AddRow(25): %v", err)
	}
	if err := d.AddRow([]any{int32(5)}, 1, 5); err != nil {
		t.Fatalf("AddRow(5): %v", err)
	}

	var rest []byte
	for _, e := range collectKeys(t, c) {
		rest = append(rest, e.RowNumber)
	}
	// 5 precedes the last returned entry and is never revisited; 25
	// lands ahead and is observed.
	if !bytes.Equal(rest, []byte{20, 25, 30}) {
		t.Fatalf("resumed traversal = %v, want [20 25 30]", rest)
	}
}

func TestMultiColumnKeysAndNullOrdering(t *testing.T) {
	cols := []IndexColumn{
		{Column: &coltype.Column{Name: "a", Type: coltype.Long}},
		{Column: &coltype.Column{Name: "b", Type: coltype.Text, Collation: textcode.General}},
	}
	d := newTestTree(t, cols, false)
	rows := []struct {
		a   any
		b   any
		row byte
	}{
		{int32(1), "zeta", 1},
		{int32(1), "alpha", 2},
		{nil, "first", 3},
		{int32(2), nil, 4},
	}
	for _, r := range rows {
		if err := d.AddRow([]any{r.a, r.b}, 1, r.row); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	var got []byte
	for _, e := range collectKeys(t, c) {
		got = append(got, e.RowNumber)
	}
	// Null in the leading column sorts first; then (1, alpha), (1,
	// zeta), then (2, null).
	if !bytes.Equal(got, []byte{3, 2, 1, 4}) {
		t.Fatalf("traversal = %v, want [3 2 1 4]", got)
	}
}

func TestDescendingColumnReversesOrder(t *testing.T) {
	cols := []IndexColumn{{Column: &coltype.Column{Name: "n", Type: coltype.Long}, Descending: true}}
	d := newTestTree(t, cols, false)
	for _, v := range []int32{1, 3, 2} {
		if err := d.AddRow([]any{v}, 1, byte(v)); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	var got []byte
	for _, e := range collectKeys(t, c) {
		got = append(got, e.RowNumber)
	}
	if !bytes.Equal(got, []byte{3, 2, 1}) {
		t.Fatalf("descending traversal = %v, want [3 2 1]", got)
	}
}

func TestDeferredInitialization(t *testing.T) {
	f := jetformat.General()
	pc := pagestore.New(ioutil.NewMemChannel(), f.PageSize, codec.Identity{})
	if _, err := pc.AllocateNewPage(); err != nil {
		t.Fatalf("AllocateNewPage: %v", err)
	}
	created, err := CreateIndexData(pc, f, longIndexCols(), false, false)
	if err != nil {
		t.Fatalf("CreateIndexData: %v", err)
	}
	if err := created.AddRow([]any{int32(1)}, 1, 1); err != nil {
		t.Fatalf("AddRow: %v", err)
	}

	reopened := OpenIndexData(pc, f, longIndexCols(), false, false, created.RootPage())
	if reopened.initialized {
		t.Fatalf("a reopened tree should defer initialization")
	}
	c, err := reopened.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if !reopened.initialized {
		t.Fatalf("Cursor should force initialization")
	}
	if got := len(collectKeys(t, c)); got != 1 {
		t.Fatalf("reopened tree yielded %d entries, want 1", got)
	}
}

func TestLogicalIndexSharesData(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	primary := NewIndex("PrimaryKey", 0, TypePrimary, d)
	alias := NewIndex("ByNumber", 1, TypeOther, d)

	if err := primary.AddRow(map[string]any{"n": int32(12)}, 1, 0); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	c, err := alias.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if got := len(collectKeys(t, c)); got != 1 {
		t.Fatalf("alias sees %d entries, want 1", got)
	}

	if primary.Equal(alias) {
		t.Errorf("indexes with different numbers should not be equal")
	}
	if !primary.Equal(NewIndex("other-name", 0, TypeOther, d)) {
		t.Errorf("equality is by index number")
	}
	if _, err := primary.project(map[string]any{"wrong": 1}); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}
	if s := primary.String(); s == "" {
		t.Errorf("String should be diagnostic, got %q", s)
	}
}

func TestEntryKeySuffixRoundTrip(t *testing.T) {
	prefix, err := EncodeKeyPrefix(nil, longIndexCols(), []any{int32(77)})
	if err != nil {
		t.Fatalf("EncodeKeyPrefix: %v", err)
	}
	entry := AppendRowIdSuffix(prefix, 123456, 78)
	gotPrefix, page, row, err := SplitEntry(entry)
	if err != nil {
		t.Fatalf("SplitEntry: %v", err)
	}
	if !bytes.Equal(gotPrefix, prefix) || page != 123456 || row != 78 {
		t.Fatalf("SplitEntry = (%x, %d, %d)", gotPrefix, page, row)
	}
	// RowId suffixes order entries with equal prefixes.
	for i := 1; i < 5; i++ {
		a := AppendRowIdSuffix(append([]byte(nil), prefix...), uint32(i-1), 0)
		b := AppendRowIdSuffix(append([]byte(nil), prefix...), uint32(i), 0)
		if bytes.Compare(a, b) >= 0 {
			t.Fatalf("RowId suffix ordering broken at page %d", i)
		}
	}
}

func TestConstructIndexValues(t *testing.T) {
	cols := []IndexColumn{
		{Column: &coltype.Column{Name: "a", Type: coltype.Long}},
		{Column: &coltype.Column{Name: "b", Type: coltype.Long}},
	}
	values, ok := ConstructIndexValues(cols, map[string]any{"a": int32(1), "b": nil})
	if !ok || values[0].(int32) != 1 || values[1] != nil {
		t.Fatalf("ConstructIndexValues = (%v, %v)", values, ok)
	}
	if _, ok := ConstructIndexValues(cols, map[string]any{"a": int32(1)}); ok {
		t.Fatalf("a missing column should report absent")
	}
}

func TestIgnoreNullsSkipsAllNullTuples(t *testing.T) {
	f := jetformat.General()
	pc := pagestore.New(ioutil.NewMemChannel(), f.PageSize, codec.Identity{})
	if _, err := pc.AllocateNewPage(); err != nil {
		t.Fatalf("AllocateNewPage: %v", err)
	}
	d, err := CreateIndexData(pc, f, longIndexCols(), true, true)
	if err != nil {
		t.Fatalf("CreateIndexData: %v", err)
	}
	if err := d.AddRow([]any{nil}, 1, 0); err != nil {
		t.Fatalf("AddRow null: %v", err)
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if got := len(collectKeys(t, c)); got != 0 {
		t.Fatalf("ignoreNulls tree holds %d entries, want 0", got)
	}
}

func TestCursorModCountSnapshot(t *testing.T) {
	d := newTestTree(t, longIndexCols(), false)
	if err := d.AddRow([]any{int32(1)}, 1, 1); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	before := d.ModCount()
	if err := d.AddRow([]any{int32(2)}, 1, 2); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if d.ModCount() == before {
		t.Fatalf("ModCount should advance on AddRow")
	}
	// The cursor still drains correctly despite the snapshot mismatch.
	if got := len(collectKeys(t, c)); got != 2 {
		t.Fatalf("drained %d entries, want 2", got)
	}
}

func TestManyEntriesWithTextKeys(t *testing.T) {
	d := newTestTree(t, textIndexCols(), false)
	const count = 500
	for i := 0; i < count; i++ {
		s := fmt.Sprintf("value-%04d", (i*7)%count)
		if err := d.AddRow([]any{s}, uint32(i+1), 0); err != nil {
			t.Fatalf("AddRow(%q): %v", s, err)
		}
	}
	c, err := d.Cursor(nil, true, nil, true)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	entries := collectKeys(t, c)
	if len(entries) != count {
		t.Fatalf("got %d entries, want %d", len(entries), count)
	}
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) > 0 {
			t.Fatalf("text entries %d and %d out of order", i-1, i)
		}
	}
}
