package usagemap

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/pagestore"
)

// declarationSize is the fixed byte length of a usage-map declaration
// row: large enough for either encoding (1-byte type tag, 4-byte start
// page and 64-byte inline bitmap, or 1-byte type tag plus 17 four-byte
// reference pointers — both 69 bytes).
const declarationSize = 69

// Declaration is the fixed-size region of a page that holds a usage
// map's type byte and either its inline bitmap or its reference
// pointers. It owns the full page buffer so mutations can be persisted
// back with a single WritePage.
type Declaration struct {
	channel    *pagestore.PageChannel
	pageNumber uint32
	offset     int
	page       []byte
}

// LoadDeclaration reads the page at pageNumber and exposes the
// declarationSize-byte region starting at offset.
func LoadDeclaration(channel *pagestore.PageChannel, pageNumber uint32, offset int) (*Declaration, error) {
	page := channel.CreatePageBuffer()
	if err := channel.ReadPage(page, pageNumber); err != nil {
		return nil, err
	}
	if offset < 0 || offset+declarationSize > len(page) {
		return nil, fmt.Errorf("usagemap: declaration offset %d out of range for a %d-byte page", offset, len(page))
	}
	return &Declaration{channel: channel, pageNumber: pageNumber, offset: offset, page: page}, nil
}

// Bytes returns the declaration's backing bytes. Mutating the returned
// slice mutates the in-memory page; call Persist to write it back.
func (d *Declaration) Bytes() []byte { return d.page[d.offset : d.offset+declarationSize] }

// Persist writes the owning page back through the channel it was
// loaded from.
func (d *Declaration) Persist() error {
	return d.channel.WritePage(d.page, d.pageNumber)
}
