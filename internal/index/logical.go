package index

import (
	"errors"
	"fmt"
)

// Type tags a logical index's role.
type Type byte

const (
	TypeOther   Type = 0
	TypePrimary Type = 1
	TypeForeign Type = 2
)

func (t Type) String() string {
	switch t {
	case TypePrimary:
		return "PRIMARY"
	case TypeForeign:
		return "FOREIGN"
	default:
		return "OTHER"
	}
}

// ErrMissingColumn reports a row map that lacks one of the index's
// columns entirely (an explicit nil is a null, not a missing column).
var ErrMissingColumn = errors.New("index: row is missing an indexed column")

// Index is a logical index: a name and a type tag bound to a shared
// IndexData. Several Index values may reference one IndexData; equality
// is by index number, the 0-based declaration sequence within the
// table.
type Index struct {
	name   string
	number int
	typ    Type
	data   *IndexData
}

// NewIndex binds a name and type to its physical tree.
func NewIndex(name string, number int, typ Type, data *IndexData) *Index {
	return &Index{name: name, number: number, typ: typ, data: data}
}

func (ix *Index) Name() string     { return ix.name }
func (ix *Index) Number() int      { return ix.number }
func (ix *Index) IndexType() Type  { return ix.typ }
func (ix *Index) Data() *IndexData { return ix.data }
func (ix *Index) IsUnique() bool   { return ix.data.IsUnique() }

// Equal compares by index number.
func (ix *Index) Equal(other *Index) bool {
	return other != nil && ix.number == other.number
}

func (ix *Index) String() string {
	return fmt.Sprintf("Index[%s #%d %v unique=%v root=%d]",
		ix.name, ix.number, ix.typ, ix.data.IsUnique(), ix.data.RootPage())
}

// project resolves row into values aligned with the index columns.
func (ix *Index) project(row map[string]any) ([]any, error) {
	values, ok := ConstructIndexValues(ix.data.Columns(), row)
	if !ok {
		return nil, fmt.Errorf("%w: index %q", ErrMissingColumn, ix.name)
	}
	return values, nil
}

// AddRow indexes row at (pageNumber, rowNumber).
func (ix *Index) AddRow(row map[string]any, pageNumber uint32, rowNumber byte) error {
	values, err := ix.project(row)
	if err != nil {
		return err
	}
	return ix.data.AddRow(values, pageNumber, rowNumber)
}

// DeleteRow removes row's entry at (pageNumber, rowNumber).
func (ix *Index) DeleteRow(row map[string]any, pageNumber uint32, rowNumber byte) error {
	values, err := ix.project(row)
	if err != nil {
		return err
	}
	return ix.data.DeleteRow(values, pageNumber, rowNumber)
}

// Cursor opens an entry cursor over the shared tree.
func (ix *Index) Cursor(start []any, startInclusive bool, end []any, endInclusive bool) (*EntryCursor, error) {
	return ix.data.Cursor(start, startInclusive, end, endInclusive)
}
