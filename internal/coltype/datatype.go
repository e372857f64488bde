// Package coltype defines column metadata: the data-type enumeration
// with its on-disk codes and size rules, the bidirectional SQL-type
// mapping, and the pluggable per-type value coders that read, write,
// and produce index sort keys for scalar values.
package coltype

import "fmt"

// DataType is the on-disk numeric code of a column's type.
type DataType byte

const (
	Boolean       DataType = 0x01
	ByteType      DataType = 0x02
	Int           DataType = 0x03 // 16-bit signed
	Long          DataType = 0x04 // 32-bit signed
	Money         DataType = 0x05 // 64-bit fixed point, four decimal places
	Float         DataType = 0x06
	Double        DataType = 0x07
	ShortDateTime DataType = 0x08
	Binary        DataType = 0x09
	Text          DataType = 0x0A
	OLE           DataType = 0x0B // long value, raw bytes
	Memo          DataType = 0x0C // long value, text
	GUID          DataType = 0x0F
	Numeric       DataType = 0x10 // fixed-point decimal, no default coder
)

// typeInfo captures the static size/shape rules of one data type.
type typeInfo struct {
	name        string
	fixedSize   int // -1 for variable-length types
	defaultSize int // variable types only
	maxSize     int // variable types only
	longValue   bool
	maxScale    byte
	maxPrecision byte
}

var typeInfos = map[DataType]typeInfo{
	Boolean:       {name: "BOOLEAN", fixedSize: 1},
	ByteType:      {name: "BYTE", fixedSize: 1},
	Int:           {name: "INT", fixedSize: 2},
	Long:          {name: "LONG", fixedSize: 4},
	Money:         {name: "MONEY", fixedSize: 8, maxScale: 4, maxPrecision: 19},
	Float:         {name: "FLOAT", fixedSize: 4},
	Double:        {name: "DOUBLE", fixedSize: 8},
	ShortDateTime: {name: "SHORT_DATE_TIME", fixedSize: 8},
	Binary:        {name: "BINARY", fixedSize: -1, defaultSize: 255, maxSize: 255},
	Text:          {name: "TEXT", fixedSize: -1, defaultSize: 50, maxSize: 4000},
	OLE:           {name: "OLE", fixedSize: -1, defaultSize: 0, maxSize: 1 << 30, longValue: true},
	Memo:          {name: "MEMO", fixedSize: -1, defaultSize: 0, maxSize: 1 << 30, longValue: true},
	GUID:          {name: "GUID", fixedSize: 16},
	Numeric:       {name: "NUMERIC", fixedSize: 17, maxScale: 28, maxPrecision: 28},
}

func (d DataType) info() typeInfo {
	info, ok := typeInfos[d]
	if !ok {
		return typeInfo{name: fmt.Sprintf("UNKNOWN(0x%02x)", byte(d)), fixedSize: -1}
	}
	return info
}

func (d DataType) String() string { return d.info().name }

// Valid reports whether d is one of the known on-disk type codes.
func (d DataType) Valid() bool {
	_, ok := typeInfos[d]
	return ok
}

// IsVariableLength reports whether values of this type occupy the
// row's variable-length tail rather than a fixed slot.
func (d DataType) IsVariableLength() bool { return d.info().fixedSize < 0 }

// IsLongValue reports whether content is stored on separate LONG_VALUE
// pages, referenced from the row by a 12-byte descriptor.
func (d DataType) IsLongValue() bool { return d.info().longValue }

// FixedSize returns the on-disk byte width for fixed types; ok is false
// for variable-length types.
func (d DataType) FixedSize() (size int, ok bool) {
	info := d.info()
	if info.fixedSize < 0 {
		return 0, false
	}
	return info.fixedSize, true
}

// DefaultSize returns the default declared size for variable types.
func (d DataType) DefaultSize() int { return d.info().defaultSize }

// MaxSize returns the maximum declared size for variable types.
func (d DataType) MaxSize() int { return d.info().maxSize }

// MaxScale and MaxPrecision bound scale/precision for the fixed-point
// types; both are zero for every other type.
func (d DataType) MaxScale() byte     { return d.info().maxScale }
func (d DataType) MaxPrecision() byte { return d.info().maxPrecision }

// SQL type integers, as defined by the java.sql.Types-compatible
// numbering hosts exchange with the library.
const (
	sqlBit           = -7
	sqlTinyInt       = -6
	sqlSmallInt      = 5
	sqlInteger       = 4
	sqlReal          = 7
	sqlDouble        = 8
	sqlDecimal       = 3
	sqlTimestamp     = 93
	sqlVarBinary     = -3
	sqlVarChar       = 12
	sqlLongVarBinary = -4
	sqlLongVarChar   = -1
	sqlChar          = 1
)

// sqlTypes binds each data type to its external SQL-type integer where
// one exists; fromSQLTypes is the reverse direction, built in init so
// the two can never drift apart.
var sqlTypes = map[DataType]int{
	Boolean:       sqlBit,
	ByteType:      sqlTinyInt,
	Int:           sqlSmallInt,
	Long:          sqlInteger,
	Money:         sqlDecimal,
	Float:         sqlReal,
	Double:        sqlDouble,
	ShortDateTime: sqlTimestamp,
	Binary:        sqlVarBinary,
	Text:          sqlVarChar,
	OLE:           sqlLongVarBinary,
	Memo:          sqlLongVarChar,
	GUID:          sqlChar,
	Numeric:       sqlDecimal,
}

var fromSQLTypes = map[int]DataType{}

func init() {
	for dt, sql := range sqlTypes {
		// Money and Numeric both map to DECIMAL; the reverse direction
		// prefers Numeric, the more general of the two.
		if existing, ok := fromSQLTypes[sql]; ok && existing == Numeric {
			continue
		}
		fromSQLTypes[sql] = dt
	}
	fromSQLTypes[sqlDecimal] = Numeric
}

// SQLType returns the external SQL-type integer bound to d.
func (d DataType) SQLType() (int, error) {
	sql, ok := sqlTypes[d]
	if !ok {
		return 0, fmt.Errorf("coltype: no SQL type for %v", d)
	}
	return sql, nil
}

// FromSQLType resolves a data type from an external SQL-type integer.
func FromSQLType(sql int) (DataType, error) {
	dt, ok := fromSQLTypes[sql]
	if !ok {
		return 0, fmt.Errorf("coltype: no data type for SQL type %d", sql)
	}
	return dt, nil
}
