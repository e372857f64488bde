package jetcore

import (
	"github.com/ambermdb/jetcore/internal/coltype"
	"github.com/ambermdb/jetcore/internal/index"
	"github.com/ambermdb/jetcore/internal/textcode"
)

// Column is the static metadata of one table column.
type Column = coltype.Column

// DataType is the on-disk numeric code of a column's type.
type DataType = coltype.DataType

// The supported data types.
const (
	Boolean       = coltype.Boolean
	Byte          = coltype.ByteType
	Int           = coltype.Int
	Long          = coltype.Long
	Money         = coltype.Money
	Float         = coltype.Float
	Double        = coltype.Double
	ShortDateTime = coltype.ShortDateTime
	Binary        = coltype.Binary
	Text          = coltype.Text
	OLE           = coltype.OLE
	Memo          = coltype.Memo
	GUID          = coltype.GUID
	Numeric       = coltype.Numeric
)

// Collation selects a text column's sort-key table.
type Collation = textcode.Collation

const (
	CollationLegacy  = textcode.Legacy
	CollationGeneral = textcode.General
)

// IndexType tags a logical index's role.
type IndexType = index.Type

const (
	IndexOther   = index.TypeOther
	IndexPrimary = index.TypePrimary
	IndexForeign = index.TypeForeign
)

// FromSQLType resolves a data type from an external SQL-type integer.
func FromSQLType(sql int) (DataType, error) {
	dt, err := coltype.FromSQLType(sql)
	if err != nil {
		return 0, newUnsupportedTypeError(err.Error())
	}
	return dt, nil
}

// SQLTypeOf returns the external SQL-type integer bound to dt.
func SQLTypeOf(dt DataType) (int, error) {
	sql, err := dt.SQLType()
	if err != nil {
		return 0, newUnsupportedTypeError(err.Error())
	}
	return sql, nil
}

// Row is a column-name-to-value mapping that preserves insertion order
// so a row read back iterates its columns the way they were written.
type Row struct {
	names  []string
	values map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

// Set stores a value, appending the column to the iteration order on
// first use.
func (r *Row) Set(name string, value any) *Row {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = value
	return r
}

// Get returns the value stored under name; ok is false when the column
// was never set (an explicit nil is present).
func (r *Row) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Names returns the column names in insertion order.
func (r *Row) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of columns set.
func (r *Row) Len() int { return len(r.names) }
