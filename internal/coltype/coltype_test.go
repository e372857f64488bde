package coltype

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ambermdb/jetcore/internal/textcode"
)

func TestDataTypeSizes(t *testing.T) {
	tests := []struct {
		dt    DataType
		fixed int
		ok    bool
	}{
		{Boolean, 1, true},
		{Int, 2, true},
		{Long, 4, true},
		{Money, 8, true},
		{Double, 8, true},
		{GUID, 16, true},
		{Text, 0, false},
		{Memo, 0, false},
	}
	for _, tt := range tests {
		size, ok := tt.dt.FixedSize()
		if size != tt.fixed || ok != tt.ok {
			t.Errorf("%v.FixedSize() = (%d, %v), want (%d, %v)", tt.dt, size, ok, tt.fixed, tt.ok)
		}
	}
	if !Memo.IsLongValue() || !OLE.IsLongValue() {
		t.Errorf("Memo and OLE should be long-value types")
	}
	if Long.IsLongValue() {
		t.Errorf("Long should not be a long-value type")
	}
}

func TestSQLTypeMapRoundTrips(t *testing.T) {
	for _, dt := range []DataType{Boolean, ByteType, Int, Long, Float, Double, ShortDateTime, Binary, Text, OLE, Memo, GUID} {
		sql, err := dt.SQLType()
		if err != nil {
			t.Fatalf("%v.SQLType: %v", dt, err)
		}
		back, err := FromSQLType(sql)
		if err != nil {
			t.Fatalf("FromSQLType(%d): %v", sql, err)
		}
		if back != dt {
			t.Errorf("SQL round trip of %v came back as %v", dt, back)
		}
	}
	// DECIMAL is shared by Money and Numeric; the reverse map prefers
	// Numeric.
	if dt, _ := FromSQLType(sqlDecimal); dt != Numeric {
		t.Errorf("FromSQLType(DECIMAL) = %v, want Numeric", dt)
	}
	if _, err := FromSQLType(9999); err == nil {
		t.Errorf("expected an error for an unmapped SQL type")
	}
}

func TestLongCoderRoundTrip(t *testing.T) {
	col := &Column{Name: "n", Type: Long}
	coder, err := col.Coder()
	if err != nil {
		t.Fatalf("Coder: %v", err)
	}
	raw, err := coder.Write(int32(-42))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := coder.Read(raw)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v.(int32) != -42 {
		t.Fatalf("round trip: got %v", v)
	}
}

func TestSignedSortKeysOrder(t *testing.T) {
	coder := longCoder{}
	values := []int32{-2147483648, -1000, -1, 0, 1, 7, 2147483647}
	var prev []byte
	for _, v := range values {
		key, err := coder.SortKey(nil, v, false)
		if err != nil {
			t.Fatalf("SortKey(%d): %v", v, err)
		}
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Errorf("sort key for %d does not sort above its predecessor", v)
		}
		prev = key
	}
}

func TestFloatSortKeysOrder(t *testing.T) {
	coder := doubleCoder{}
	values := []float64{-1e300, -1.5, -0.0001, 0, 0.0001, 1.5, 1e300}
	var prev []byte
	for _, v := range values {
		key, err := coder.SortKey(nil, v, false)
		if err != nil {
			t.Fatalf("SortKey(%g): %v", v, err)
		}
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Errorf("sort key for %g does not sort above its predecessor", v)
		}
		prev = key
	}
}

func TestDescendingComplementsKey(t *testing.T) {
	coder := longCoder{}
	asc, _ := coder.SortKey(nil, int32(7), false)
	desc, _ := coder.SortKey(nil, int32(7), true)
	for i := range asc {
		if asc[i]^0xFF != desc[i] {
			t.Fatalf("descending key is not the complement: %x vs %x", asc, desc)
		}
	}
}

func TestGUIDCoder(t *testing.T) {
	col := &Column{Name: "g", Type: GUID}
	coder, err := col.Coder()
	if err != nil {
		t.Fatalf("Coder: %v", err)
	}
	id := uuid.MustParse("12345678-9abc-def0-1234-56789abcdef0")
	raw, err := coder.Write(id)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(raw) != 16 {
		t.Fatalf("GUID storage is %d bytes, want 16", len(raw))
	}
	back, err := coder.Read(raw)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if back.(uuid.UUID) != id {
		t.Fatalf("round trip: got %v", back)
	}
	// Strings parse too.
	raw2, err := coder.Write(id.String())
	if err != nil {
		t.Fatalf("Write(string): %v", err)
	}
	if !bytes.Equal(raw, raw2) {
		t.Fatalf("string form encoded differently")
	}
}

func TestTextCoderCharsets(t *testing.T) {
	legacy := &Column{Name: "t", Type: Text, Collation: textcode.Legacy}
	general := &Column{Name: "t", Type: Text, Collation: textcode.General}

	lc, err := legacy.Coder()
	if err != nil {
		t.Fatalf("legacy Coder: %v", err)
	}
	gc, err := general.Coder()
	if err != nil {
		t.Fatalf("general Coder: %v", err)
	}

	raw, err := lc.Write("héllo")
	if err != nil {
		t.Fatalf("legacy Write: %v", err)
	}
	if len(raw) != 5 {
		t.Fatalf("legacy charset should be single-byte: got %d bytes", len(raw))
	}
	back, err := lc.Read(raw)
	if err != nil {
		t.Fatalf("legacy Read: %v", err)
	}
	if back.(string) != "héllo" {
		t.Fatalf("legacy round trip: got %q", back)
	}

	raw, err = gc.Write("héllo")
	if err != nil {
		t.Fatalf("general Write: %v", err)
	}
	if len(raw) != 10 {
		t.Fatalf("general charset should be UTF-16LE: got %d bytes", len(raw))
	}
	back, err = gc.Read(raw)
	if err != nil {
		t.Fatalf("general Read: %v", err)
	}
	if back.(string) != "héllo" {
		t.Fatalf("general round trip: got %q", back)
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	col := &Column{Name: "d", Type: ShortDateTime}
	coder, err := col.Coder()
	if err != nil {
		t.Fatalf("Coder: %v", err)
	}
	when := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	raw, err := coder.Write(when)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := coder.Read(raw)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got := back.(time.Time)
	if !got.Equal(when) {
		t.Fatalf("round trip: got %v, want %v", got, when)
	}
}

func TestNumericHasNoDefaultCoder(t *testing.T) {
	col := &Column{Name: "n", Type: Numeric}
	if _, err := col.Coder(); err == nil {
		t.Fatalf("expected Numeric to have no default coder")
	}
}
