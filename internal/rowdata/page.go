// Package rowdata implements the data-page record format (C7): the
// page header and tail-anchored row-offset table, the packed row layout
// with its null bitmap and variable-length offset table, and the
// segregation of long values onto their own page chains.
package rowdata

import (
	"errors"
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
)

// Row-offset-table entry flags. The offset occupies the low bits; the
// two high bits mark a logically deleted row and a row migrated to
// another page (the entry's slot then holds a pointer row).
const (
	rowDeletedFlag  = 0x8000
	rowOverflowFlag = 0x4000
	rowOffsetMask   = 0x1FFF
)

var (
	// ErrPageFull reports that a row (plus its offset entry) does not
	// fit in the page's free space; the caller allocates a new data
	// page via the usage map and retries.
	ErrPageFull = errors.New("rowdata: page full")

	// ErrRowDeleted reports access to a logically deleted row.
	ErrRowDeleted = errors.New("rowdata: row deleted")

	// ErrNoSuchRow reports a row number past the page's row count.
	ErrNoSuchRow = errors.New("rowdata: no such row")
)

// Page wraps one data page's buffer with the layout knowledge to read
// and mutate its rows. The buffer is the caller's; Page never writes it
// back to the channel itself.
type Page struct {
	f   *jetformat.Format
	buf []byte
}

// FormatDataPage initializes buf as an empty data page owned by the
// table defined at tableDefPage.
func FormatDataPage(buf []byte, f *jetformat.Format, tableDefPage uint32) *Page {
	for i := range buf {
		buf[i] = 0
	}
	buf[f.OffsetPageType] = byte(jetformat.PageTypeData)
	order := f.ByteOrder()
	order.PutUint16(buf[f.OffsetFreeSpace:], uint16(f.OffsetRowsStart))
	order.PutUint32(buf[f.OffsetTableDefPage:], tableDefPage)
	order.PutUint16(buf[f.OffsetRowCount:], 0)
	return &Page{f: f, buf: buf}
}

// OnPage wraps an existing data-page buffer, verifying the type byte.
func OnPage(buf []byte, f *jetformat.Format) (*Page, error) {
	if buf[f.OffsetPageType] != byte(jetformat.PageTypeData) {
		return nil, fmt.Errorf("rowdata: page type byte 0x%02x is not a data page", buf[f.OffsetPageType])
	}
	return &Page{f: f, buf: buf}, nil
}

// TableDefPage returns the owning table-definition page number.
func (p *Page) TableDefPage() uint32 {
	return p.f.ByteOrder().Uint32(p.buf[p.f.OffsetTableDefPage:])
}

// RowCount returns the number of row-offset-table entries, deleted rows
// included.
func (p *Page) RowCount() int {
	return int(p.f.ByteOrder().Uint16(p.buf[p.f.OffsetRowCount:]))
}

func (p *Page) freeSpaceOffset() int {
	return int(p.f.ByteOrder().Uint16(p.buf[p.f.OffsetFreeSpace:]))
}

// FreeSpace returns how many contiguous bytes remain for new row data,
// after accounting for the offset entry a new row would also need.
func (p *Page) FreeSpace() int {
	free := len(p.buf) - 2*p.RowCount() - p.freeSpaceOffset() - 2
	if free < 0 {
		return 0
	}
	return free
}

// entry returns the raw offset-table word for rowNum. Entry i lives at
// the page tail, growing downward: the first row's entry occupies the
// last two bytes of the page.
func (p *Page) entry(rowNum int) uint16 {
	pos := len(p.buf) - 2*(rowNum+1)
	return p.f.ByteOrder().Uint16(p.buf[pos:])
}

func (p *Page) setEntry(rowNum int, v uint16) {
	pos := len(p.buf) - 2*(rowNum+1)
	p.f.ByteOrder().PutUint16(p.buf[pos:], v)
}

// Slot describes one row's extent and state within the page.
type Slot struct {
	Offset   int
	End      int
	Deleted  bool
	Overflow bool
}

// Slot resolves rowNum's extent: from its offset to the next higher
// row offset, or to the free-space mark for the topmost row.
func (p *Page) Slot(rowNum int) (Slot, error) {
	count := p.RowCount()
	if rowNum < 0 || rowNum >= count {
		return Slot{}, fmt.Errorf("%w: row %d of %d", ErrNoSuchRow, rowNum, count)
	}
	e := p.entry(rowNum)
	offset := int(e & rowOffsetMask)
	end := p.freeSpaceOffset()
	for i := 0; i < count; i++ {
		o := int(p.entry(i) & rowOffsetMask)
		if o > offset && o < end {
			end = o
		}
	}
	return Slot{
		Offset:   offset,
		End:      end,
		Deleted:  e&rowDeletedFlag != 0,
		Overflow: e&rowOverflowFlag != 0,
	}, nil
}

// RowBytes returns the stored bytes of rowNum. Deleted rows error;
// overflow pointer rows return their whole slot, whose first 6 bytes
// hold the pointer payload (callers check Slot.Overflow to tell the
// difference).
func (p *Page) RowBytes(rowNum int) ([]byte, error) {
	slot, err := p.Slot(rowNum)
	if err != nil {
		return nil, err
	}
	if slot.Deleted {
		return nil, fmt.Errorf("%w: row %d", ErrRowDeleted, rowNum)
	}
	return p.buf[slot.Offset:slot.End], nil
}

// AddRow appends row to the page, returning its row number.
func (p *Page) AddRow(row []byte) (int, error) {
	if len(row) > p.FreeSpace() {
		return 0, fmt.Errorf("%w: %d bytes needed, %d free", ErrPageFull, len(row), p.FreeSpace())
	}
	offset := p.freeSpaceOffset()
	copy(p.buf[offset:], row)
	rowNum := p.RowCount()
	p.setEntry(rowNum, uint16(offset))
	order := p.f.ByteOrder()
	order.PutUint16(p.buf[p.f.OffsetFreeSpace:], uint16(offset+len(row)))
	order.PutUint16(p.buf[p.f.OffsetRowCount:], uint16(rowNum+1))
	return rowNum, nil
}

// UpdateRow overwrites rowNum's slot in place. The replacement must be
// encoded to exactly the slot's size (EncodeRow pads with slack for
// this); a row that can no longer fit migrates via MakeOverflow
// instead.
func (p *Page) UpdateRow(rowNum int, row []byte) error {
	slot, err := p.Slot(rowNum)
	if err != nil {
		return err
	}
	if slot.Deleted {
		return fmt.Errorf("%w: row %d", ErrRowDeleted, rowNum)
	}
	if len(row) != slot.End-slot.Offset {
		return fmt.Errorf("rowdata: in-place update of row %d needs %d bytes, got %d", rowNum, slot.End-slot.Offset, len(row))
	}
	copy(p.buf[slot.Offset:slot.End], row)
	return nil
}

// DeleteRow marks rowNum logically deleted. The slot's space is not
// reclaimed.
func (p *Page) DeleteRow(rowNum int) error {
	slot, err := p.Slot(rowNum)
	if err != nil {
		return err
	}
	if slot.Deleted {
		return fmt.Errorf("%w: row %d", ErrRowDeleted, rowNum)
	}
	p.setEntry(rowNum, p.entry(rowNum)|rowDeletedFlag)
	return nil
}

// MakeOverflow converts rowNum's slot into a pointer row naming the
// page and row the record migrated to.
func (p *Page) MakeOverflow(rowNum int, newPage uint32, newRow uint16) error {
	slot, err := p.Slot(rowNum)
	if err != nil {
		return err
	}
	if slot.Deleted {
		return fmt.Errorf("%w: row %d", ErrRowDeleted, rowNum)
	}
	if slot.End-slot.Offset < 6 {
		return fmt.Errorf("rowdata: row %d slot too small for an overflow pointer", rowNum)
	}
	order := p.f.ByteOrder()
	order.PutUint32(p.buf[slot.Offset:], newPage)
	order.PutUint16(p.buf[slot.Offset+4:], newRow)
	p.setEntry(rowNum, p.entry(rowNum)|rowOverflowFlag)
	return nil
}

// OverflowTarget reads the pointer payload of an overflow row.
func (p *Page) OverflowTarget(rowNum int) (page uint32, row uint16, err error) {
	slot, err := p.Slot(rowNum)
	if err != nil {
		return 0, 0, err
	}
	if !slot.Overflow {
		return 0, 0, fmt.Errorf("rowdata: row %d is not an overflow pointer", rowNum)
	}
	order := p.f.ByteOrder()
	return order.Uint32(p.buf[slot.Offset:]), order.Uint16(p.buf[slot.Offset+4:]), nil
}
