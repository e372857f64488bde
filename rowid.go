package jetcore

import "fmt"

// sentinelFirst and sentinelLast are the page numbers used to encode the
// FirstRowId and LastRowId sentinels. They are chosen so that ordinary
// lexicographic comparison of (pageNumber, rowNumber) places FirstRowId
// before and LastRowId after every real RowId without special-casing
// every comparison site.
const (
	sentinelFirst int32 = -1
	sentinelLast  int32 = -2
)

// RowId identifies a row by the data page it lives on and its slot
// within that page's row-offset table. RowId is an immutable value type:
// equality and ordering are structural.
type RowId struct {
	pageNumber int32
	rowNumber  int32
}

// FirstRowId sorts strictly before every valid RowId.
var FirstRowId = RowId{pageNumber: sentinelFirst, rowNumber: 0}

// LastRowId sorts strictly after every valid RowId.
var LastRowId = RowId{pageNumber: sentinelLast, rowNumber: 0}

// NewRowId builds a RowId for a real row. Both arguments must be
// non-negative; NewRowId panics otherwise, since a negative page or row
// number can only arise from a programming error (the sentinels are
// constructed directly, never through NewRowId).
func NewRowId(pageNumber, rowNumber int32) RowId {
	if pageNumber < 0 || rowNumber < 0 {
		panic(fmt.Sprintf("jetcore: invalid RowId(%d, %d)", pageNumber, rowNumber))
	}
	return RowId{pageNumber: pageNumber, rowNumber: rowNumber}
}

// Valid reports whether r identifies a real row (i.e. is neither
// FirstRowId nor LastRowId).
func (r RowId) Valid() bool {
	return r.pageNumber >= 0 && r.rowNumber >= 0
}

// PageNumber returns the owning data page number. Only meaningful when
// r.Valid().
func (r RowId) PageNumber() int32 { return r.pageNumber }

// RowNumber returns the row's slot index within its page. Only
// meaningful when r.Valid().
func (r RowId) RowNumber() int32 { return r.rowNumber }

// comparableRank maps the sentinel page numbers to the extrema needed
// for lexicographic ordering: FirstRowId must compare less than every
// real page number (which are all >= 0), and LastRowId must compare
// greater than every real page number.
func (r RowId) comparableRank() int64 {
	switch r.pageNumber {
	case sentinelFirst:
		return -1
	case sentinelLast:
		return 1<<63 - 1
	default:
		return int64(r.pageNumber)
	}
}

// Compare returns -1, 0, or 1 as r is less than, equal to, or greater
// than other, ordering lexicographically on (comparable page number,
// row number).
func (r RowId) Compare(other RowId) int {
	rr, or := r.comparableRank(), other.comparableRank()
	switch {
	case rr < or:
		return -1
	case rr > or:
		return 1
	}
	switch {
	case r.rowNumber < other.rowNumber:
		return -1
	case r.rowNumber > other.rowNumber:
		return 1
	default:
		return 0
	}
}

// Less reports whether r sorts strictly before other.
func (r RowId) Less(other RowId) bool { return r.Compare(other) < 0 }

// Equal reports structural equality.
func (r RowId) Equal(other RowId) bool {
	return r.pageNumber == other.pageNumber && r.rowNumber == other.rowNumber
}

func (r RowId) String() string {
	switch r.pageNumber {
	case sentinelFirst:
		return "RowId(first)"
	case sentinelLast:
		return "RowId(last)"
	default:
		return fmt.Sprintf("RowId(%d,%d)", r.pageNumber, r.rowNumber)
	}
}
