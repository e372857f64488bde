package coltype

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/ambermdb/jetcore/internal/textcode"
)

// DateTimeMode selects the shape of date values handed back to
// callers.
type DateTimeMode int

const (
	// DateTimeLegacy interprets stored dates in the configured location
	// and returns a time.Time pinned to it.
	DateTimeLegacy DateTimeMode = iota

	// DateTimeLocal returns the stored wall-clock fields as a time.Time
	// in time.Local without any zone conversion.
	DateTimeLocal
)

// Column is the static metadata of one table column. A Column carries
// no row data; it knows its type's size rules and how to obtain the
// coder that reads, writes, and sort-keys its values.
type Column struct {
	Name       string
	Type       DataType
	Length     uint16 // declared size, variable and fixed-text types
	Scale      byte
	Precision  byte
	AutoNumber bool

	// Collation selects the text sort-key table; it is only consulted
	// for Text and Memo columns.
	Collation textcode.Collation

	// Encoding overrides the format-default text charset. Nil selects
	// Windows-1252 for the legacy collation and UTF-16LE for the
	// general one.
	Encoding encoding.Encoding

	// TimeZone and DateTimeKind control date-time interpretation for
	// ShortDateTime columns. A nil TimeZone means time.UTC.
	TimeZone     *time.Location
	DateTimeKind DateTimeMode
}

// StorageSize returns the number of bytes a value of this column
// occupies in the row's fixed region; ok is false for variable-length
// columns (which live in the row tail and are sized per value).
func (c *Column) StorageSize() (int, bool) {
	return c.Type.FixedSize()
}

// textEncoding resolves the effective charset for this column.
func (c *Column) textEncoding() encoding.Encoding {
	if c.Encoding != nil {
		return c.Encoding
	}
	if c.Collation == textcode.Legacy {
		return charmap.Windows1252
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

// location resolves the effective time zone for this column.
func (c *Column) location() *time.Location {
	if c.TimeZone != nil {
		return c.TimeZone
	}
	return time.UTC
}

// Coder returns the value coder for this column's type. Types with no
// default coder (Numeric among them) return an error; hosts supply
// their own coder in that case.
func (c *Column) Coder() (Coder, error) {
	switch c.Type {
	case Boolean:
		return boolCoder{}, nil
	case ByteType:
		return byteCoder{}, nil
	case Int:
		return intCoder{}, nil
	case Long:
		return longCoder{}, nil
	case Money:
		return moneyCoder{}, nil
	case Float:
		return floatCoder{}, nil
	case Double:
		return doubleCoder{}, nil
	case ShortDateTime:
		return dateTimeCoder{loc: c.location(), mode: c.DateTimeKind}, nil
	case GUID:
		return guidCoder{}, nil
	case Text, Memo:
		return textCoder{enc: c.textEncoding(), collation: c.Collation}, nil
	case Binary, OLE:
		return binaryCoder{}, nil
	default:
		return nil, fmt.Errorf("coltype: no default coder for %v", c.Type)
	}
}
