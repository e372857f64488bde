package jetcore

import (
	"time"

	"golang.org/x/text/encoding"

	"github.com/ambermdb/jetcore/internal/codec"
	"github.com/ambermdb/jetcore/internal/coltype"
	"github.com/ambermdb/jetcore/internal/ioutil"
	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/jetlog"
)

// FileFormat selects the format-descriptor version on create.
type FileFormat int

const (
	// FileFormatLegacy is the older format: 2048-byte pages and the
	// legacy text collation.
	FileFormatLegacy FileFormat = iota

	// FileFormatGeneral is the 2010+ format: 4096-byte pages and the
	// general collation with extended BMP coverage.
	FileFormatGeneral
)

func (ff FileFormat) version() jetformat.Version {
	if ff == FileFormatLegacy {
		return jetformat.VersionLegacy
	}
	return jetformat.VersionGeneral
}

// DateTimeType selects the date-value shape returned to callers.
type DateTimeType int

const (
	// DateTimeLegacy interprets stored dates in the configured time
	// zone.
	DateTimeLegacy DateTimeType = iota

	// DateTimeLocalDateTime returns wall-clock fields with no zone
	// conversion.
	DateTimeLocalDateTime
)

func (dt DateTimeType) mode() coltype.DateTimeMode {
	if dt == DateTimeLocalDateTime {
		return coltype.DateTimeLocal
	}
	return coltype.DateTimeLegacy
}

// CodecProvider supplies the per-database page codec; absent means the
// identity codec.
type CodecProvider = codec.Provider

// Codec is the symmetric per-page transform applied on write and
// reversed on read.
type Codec = codec.Codec

// ByteChannel is the random-access storage a Database reads and writes
// through. Hosts may supply a pre-opened channel instead of a path.
type ByteChannel = ioutil.ByteChannel

// NewMemChannel returns an in-memory ByteChannel, useful for building a
// database without touching disk.
func NewMemChannel() ByteChannel { return ioutil.NewMemChannel() }

// OpenOptions configures Open.
type OpenOptions struct {
	// ReadOnly wraps the byte channel so every write fails.
	ReadOnly bool

	// AutoSync flushes after every completed write; unset leaves
	// durability to explicit Flush calls or Close.
	AutoSync bool

	// Charset overrides the format-default text charset.
	Charset encoding.Encoding

	// TimeZone controls date-time interpretation; nil means UTC.
	TimeZone *time.Location

	// DateTimeType selects the date-value shape returned to callers.
	DateTimeType DateTimeType

	// CodecProvider supplies the page codec; nil means identity.
	CodecProvider CodecProvider

	// Channel is a pre-opened byte channel. When set, Open reads from
	// it instead of a path and Close leaves it open for the caller.
	Channel ByteChannel

	// Logger receives storage-engine events; nil discards them.
	Logger *jetlog.Logger
}

// CreateOptions configures Create.
type CreateOptions struct {
	// FileFormat selects the format-descriptor version; the zero value
	// is FileFormatLegacy.
	FileFormat FileFormat

	// AutoSync, Charset, TimeZone, DateTimeType, CodecProvider,
	// Channel, and Logger behave as in OpenOptions.
	AutoSync      bool
	Charset       encoding.Encoding
	TimeZone      *time.Location
	DateTimeType  DateTimeType
	CodecProvider CodecProvider
	Channel       ByteChannel
	Logger        *jetlog.Logger
}
