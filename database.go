package jetcore

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding"

	"github.com/ambermdb/jetcore/internal/codec"
	"github.com/ambermdb/jetcore/internal/coltype"
	"github.com/ambermdb/jetcore/internal/ioutil"
	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/jetlog"
	"github.com/ambermdb/jetcore/internal/pagestore"
	"github.com/ambermdb/jetcore/internal/textcode"
)

// Header page layout (page 0): the page type byte, an 8-byte magic,
// the format-version byte, the 4-byte relationships page number, then
// the table directory — a 2-byte count followed by (definition page,
// name) entries.
var headerMagic = [8]byte{'A', 'm', 'b', 'e', 'r', 'J', 'e', 't'}

const (
	headerOffsetMagic      = 1
	headerOffsetVersion    = 9
	headerOffsetRelPage    = 10 // relationships page, 0 when none exist
	headerOffsetTableCount = 14
	headerOffsetDirectory  = 16
)

// Database is a handle on one database file. A handle is not safe for
// concurrent use by multiple goroutines; callers serialize externally.
type Database struct {
	channel  *pagestore.PageChannel
	format   *jetformat.Format
	log      *jetlog.Logger
	charset  encoding.Encoding
	timeZone *time.Location
	dtMode   coltype.DateTimeMode

	autoSync    bool
	readOnly    bool
	ownsChannel bool
	poisoned    bool
	closed      bool

	dirOrder []string
	dir      map[string]uint32
	tables   map[string]*Table

	relPage       uint32
	relationships []*Relationship
}

// Create formats a new database at path (or on opts.Channel when set)
// and returns an open handle on it.
func Create(path string, opts CreateOptions) (*Database, error) {
	format, err := jetformat.ForVersion(opts.FileFormat.version())
	if err != nil {
		return nil, newIoError("create", err)
	}

	ch := opts.Channel
	owns := false
	if ch == nil {
		fc, err := ioutil.OpenFileChannel(path, false, true)
		if err != nil {
			return nil, newIoError("create", err)
		}
		ch = fc
		owns = true
	}

	pageCodec, err := resolveCodec(opts.CodecProvider)
	if err != nil {
		return nil, err
	}

	db := &Database{
		channel:     pagestore.New(ch, format.PageSize, pageCodec),
		format:      format,
		log:         resolveLogger(opts.Logger),
		charset:     opts.Charset,
		timeZone:    opts.TimeZone,
		dtMode:      opts.DateTimeType.mode(),
		autoSync:    opts.AutoSync,
		ownsChannel: owns,
		dir:         make(map[string]uint32),
		tables:      make(map[string]*Table),
	}

	if _, err := db.channel.AllocateNewPage(); err != nil {
		db.cleanupAfterFailedOpen()
		return nil, newIoError("create header", err)
	}
	if err := db.writeHeader(); err != nil {
		db.cleanupAfterFailedOpen()
		return nil, err
	}
	if err := db.maybeFlush(); err != nil {
		db.cleanupAfterFailedOpen()
		return nil, err
	}
	db.log.DatabaseCreated(format.PageSize)
	return db, nil
}

// Open opens an existing database at path (or on opts.Channel).
func Open(path string, opts OpenOptions) (*Database, error) {
	ch := opts.Channel
	owns := false
	if ch == nil {
		fc, err := ioutil.OpenFileChannel(path, opts.ReadOnly, !opts.ReadOnly)
		if err != nil {
			return nil, newIoError("open", err)
		}
		ch = fc
		owns = true
	}
	if opts.ReadOnly {
		ch = ioutil.NewReadOnlyChannel(ch)
	}

	pageCodec, err := resolveCodec(opts.CodecProvider)
	if err != nil {
		return nil, err
	}

	// The header must be read before the page size is known; probe with
	// the smallest supported page, which the codec-free header prefix
	// fits in regardless of the actual size.
	probe := make([]byte, jetformat.Legacy().PageSize)
	if err := ch.ReadAt(0, probe); err != nil {
		return nil, newIoError("read header", err)
	}
	if err := pageCodec.Decode(probe, 0); err != nil {
		return nil, newIoError("decode header", err)
	}
	if [8]byte(probe[headerOffsetMagic:headerOffsetMagic+8]) != headerMagic {
		return nil, newIoError("open", fmt.Errorf("not a database file"))
	}
	format, err := jetformat.ForVersion(jetformat.Version(probe[headerOffsetVersion]))
	if err != nil {
		return nil, newIoError("open", err)
	}

	db := &Database{
		channel:     pagestore.New(ch, format.PageSize, pageCodec),
		format:      format,
		log:         resolveLogger(opts.Logger),
		charset:     opts.Charset,
		timeZone:    opts.TimeZone,
		dtMode:      opts.DateTimeType.mode(),
		autoSync:    opts.AutoSync,
		readOnly:    opts.ReadOnly,
		ownsChannel: owns,
		dir:         make(map[string]uint32),
		tables:      make(map[string]*Table),
	}
	if err := db.readHeader(); err != nil {
		db.cleanupAfterFailedOpen()
		return nil, err
	}
	db.log.DatabaseOpened(format.PageSize, opts.ReadOnly)
	return db, nil
}

func (db *Database) cleanupAfterFailedOpen() {
	if db.ownsChannel {
		_ = db.channel.Close()
	}
}

func resolveCodec(provider CodecProvider) (codec.Codec, error) {
	if provider == nil {
		provider = codec.IdentityProvider{}
	}
	c, err := provider.CodecFor()
	if err != nil {
		return nil, newIoError("codec provider", err)
	}
	return c, nil
}

func resolveLogger(l *jetlog.Logger) *jetlog.Logger {
	if l == nil {
		return jetlog.Nop()
	}
	return l
}

// collation returns the text collation matching the format version,
// which also selects the default charset.
func (db *Database) collation() textcode.Collation {
	if db.format.Version == jetformat.VersionLegacy {
		return textcode.Legacy
	}
	return textcode.General
}

func (db *Database) writeHeader() error {
	buf := db.channel.CreatePageBuffer()
	buf[db.format.OffsetPageType] = byte(jetformat.PageTypeHeader)
	copy(buf[headerOffsetMagic:], headerMagic[:])
	buf[headerOffsetVersion] = byte(db.format.Version)

	order := db.format.ByteOrder()
	order.PutUint32(buf[headerOffsetRelPage:], db.relPage)
	order.PutUint16(buf[headerOffsetTableCount:], uint16(len(db.dirOrder)))
	pos := headerOffsetDirectory
	for _, name := range db.dirOrder {
		if pos+6+len(name) > len(buf) {
			return newSchemaError("table directory overflows the header page", nil)
		}
		order.PutUint32(buf[pos:], db.dir[name])
		pos += 4
		order.PutUint16(buf[pos:], uint16(len(name)))
		pos += 2
		copy(buf[pos:], name)
		pos += len(name)
	}
	if err := db.channel.WritePage(buf, 0); err != nil {
		return newIoError("write header", err)
	}
	return nil
}

func (db *Database) readHeader() error {
	buf := db.channel.CreatePageBuffer()
	if err := db.channel.ReadPage(buf, 0); err != nil {
		return newIoError("read header", err)
	}
	order := db.format.ByteOrder()
	db.relPage = order.Uint32(buf[headerOffsetRelPage:])
	count := int(order.Uint16(buf[headerOffsetTableCount:]))
	pos := headerOffsetDirectory
	for i := 0; i < count; i++ {
		if pos+6 > len(buf) {
			return newIoError("read header", fmt.Errorf("truncated table directory"))
		}
		defPage := order.Uint32(buf[pos:])
		pos += 4
		nameLen := int(order.Uint16(buf[pos:]))
		pos += 2
		if pos+nameLen > len(buf) {
			return newIoError("read header", fmt.Errorf("truncated table name"))
		}
		name := string(buf[pos : pos+nameLen])
		pos += nameLen
		db.dir[name] = defPage
		db.dirOrder = append(db.dirOrder, name)
	}
	if db.relPage != 0 {
		return db.readRelationships()
	}
	return nil
}

// TableNames lists the tables in creation order.
func (db *Database) TableNames() []string {
	return append([]string(nil), db.dirOrder...)
}

// PageSize returns the database's fixed page size.
func (db *Database) PageSize() int { return db.format.PageSize }

// StartWrite begins a scoped, reference-counted write batch: flushes
// are deferred until the matching FinishWrite. Balanced calls are
// mandatory.
func (db *Database) StartWrite() { db.channel.StartWrite() }

// FinishWrite releases one level of the write guard, flushing if this
// was the outermost level and the database auto-syncs.
func (db *Database) FinishWrite() error {
	db.channel.FinishWrite()
	return db.maybeFlush()
}

// Flush pushes completed writes to stable storage.
func (db *Database) Flush() error {
	if err := db.channel.Flush(); err != nil {
		return newIoError("flush", err)
	}
	return nil
}

func (db *Database) maybeFlush() error {
	if db.autoSync && !db.channel.InWrite() {
		return db.Flush()
	}
	return nil
}

// Close flushes and releases the handle. Closing twice is a
// StateError. A channel supplied by the caller is left open.
func (db *Database) Close() error {
	if db.closed {
		return newStateError("database already closed", nil)
	}
	db.closed = true
	var flushErr error
	if !db.readOnly && !db.poisoned {
		flushErr = db.Flush()
	}
	if db.ownsChannel {
		if err := db.channel.Close(); err != nil && flushErr == nil {
			flushErr = newIoError("close", err)
		}
	}
	db.log.DatabaseClosed()
	return flushErr
}

// checkWritable gates every mutating operation.
func (db *Database) checkWritable() error {
	if db.closed {
		return newStateError("database closed", nil)
	}
	if db.poisoned {
		return newStateError("database handle poisoned by an earlier fatal error", nil)
	}
	if db.readOnly {
		return newStateError("database opened read-only", nil)
	}
	return nil
}

func (db *Database) checkReadable() error {
	if db.closed {
		return newStateError("database closed", nil)
	}
	return nil
}

// guardWrite runs fn, converting an internal invariant panic into a
// StateError and poisoning the handle (the file is left
// as flushed and the handle refuses further writes).
func (db *Database) guardWrite(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			db.poisoned = true
			db.log.HandlePoisoned(fmt.Sprint(r))
			err = newStateError(fmt.Sprintf("fatal error during %s: %v", op, r), nil)
		}
	}()
	return fn()
}
