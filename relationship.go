package jetcore

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
)

// Relationship flag word bits.
const (
	relOneToOne            = 0x00000001
	relReferentialIntegrity = 0x00000002
	relCascadeUpdates      = 0x00000100
	relCascadeDeletes      = 0x00001000
	relLeftOuterJoin       = 0x01000000
	relRightOuterJoin      = 0x02000000
)

// Relationship describes a stored relationship between two tables: two
// aligned column lists plus a flag word. The core stores and exposes
// relationships; it does not enforce referential integrity (that is
// catalog/table-layer territory). Relationships are immutable after
// construction.
type Relationship struct {
	name      string
	fromTable string
	toTable   string
	fromCols  []string
	toCols    []string
	flags     uint32
}

// NewRelationship builds an immutable relationship. fromCols and
// toCols must be aligned pairwise.
func NewRelationship(name, fromTable, toTable string, fromCols, toCols []string, flags uint32) (*Relationship, error) {
	if len(fromCols) != len(toCols) || len(fromCols) == 0 {
		return nil, newSchemaError("relationship column lists must be non-empty and aligned", nil)
	}
	return &Relationship{
		name:      name,
		fromTable: fromTable,
		toTable:   toTable,
		fromCols:  append([]string(nil), fromCols...),
		toCols:    append([]string(nil), toCols...),
		flags:     flags,
	}, nil
}

func (r *Relationship) Name() string      { return r.name }
func (r *Relationship) FromTable() string { return r.fromTable }
func (r *Relationship) ToTable() string   { return r.toTable }

// FromColumns and ToColumns return copies of the aligned column lists.
func (r *Relationship) FromColumns() []string { return append([]string(nil), r.fromCols...) }
func (r *Relationship) ToColumns() []string   { return append([]string(nil), r.toCols...) }

func (r *Relationship) IsOneToOne() bool              { return r.flags&relOneToOne != 0 }
func (r *Relationship) HasReferentialIntegrity() bool { return r.flags&relReferentialIntegrity != 0 }
func (r *Relationship) CascadesUpdates() bool         { return r.flags&relCascadeUpdates != 0 }
func (r *Relationship) CascadesDeletes() bool         { return r.flags&relCascadeDeletes != 0 }
func (r *Relationship) IsLeftOuterJoin() bool         { return r.flags&relLeftOuterJoin != 0 }
func (r *Relationship) IsRightOuterJoin() bool        { return r.flags&relRightOuterJoin != 0 }

// Flags returns the raw flag word.
func (r *Relationship) Flags() uint32 { return r.flags }

// CreateRelationship validates rel against the table directory and
// persists it. Relationships are stored but never enforced; cascade
// and integrity semantics belong to the table layer of a full engine.
func (db *Database) CreateRelationship(rel *Relationship) error {
	if err := db.checkWritable(); err != nil {
		return err
	}
	for _, table := range []string{rel.fromTable, rel.toTable} {
		if _, ok := db.dir[table]; !ok {
			return newSchemaError(fmt.Sprintf("relationship %q names unknown table %q", rel.name, table), nil)
		}
	}
	return db.guardWrite("create relationship", func() error {
		if db.relPage == 0 {
			pageNum, err := db.channel.AllocateNewPage()
			if err != nil {
				return newIoError("allocate relationships page", err)
			}
			db.relPage = pageNum
			if err := db.writeHeader(); err != nil {
				return err
			}
		}
		db.relationships = append(db.relationships, rel)
		if err := db.writeRelationships(); err != nil {
			db.relationships = db.relationships[:len(db.relationships)-1]
			return err
		}
		return db.maybeFlush()
	})
}

// Relationships returns the stored relationships in creation order.
func (db *Database) Relationships() []*Relationship {
	return append([]*Relationship(nil), db.relationships...)
}

// Relationships page layout: the page type byte, a 2-byte count, then
// per record a 4-byte flag word followed by length-prefixed strings
// (name, from table, to table) and the aligned column-name pairs.
func (db *Database) writeRelationships() error {
	buf := db.channel.CreatePageBuffer()
	buf[db.format.OffsetPageType] = byte(jetformat.PageTypeRelationships)
	order := db.format.ByteOrder()
	order.PutUint16(buf[2:], uint16(len(db.relationships)))

	pos := 4
	putString := func(s string) error {
		if pos+2+len(s) > len(buf) {
			return newSchemaError("relationships overflow their page", nil)
		}
		order.PutUint16(buf[pos:], uint16(len(s)))
		pos += 2
		copy(buf[pos:], s)
		pos += len(s)
		return nil
	}
	for _, rel := range db.relationships {
		if pos+6 > len(buf) {
			return newSchemaError("relationships overflow their page", nil)
		}
		order.PutUint32(buf[pos:], rel.flags)
		pos += 4
		for _, s := range []string{rel.name, rel.fromTable, rel.toTable} {
			if err := putString(s); err != nil {
				return err
			}
		}
		order.PutUint16(buf[pos:], uint16(len(rel.fromCols)))
		pos += 2
		for i := range rel.fromCols {
			if err := putString(rel.fromCols[i]); err != nil {
				return err
			}
			if err := putString(rel.toCols[i]); err != nil {
				return err
			}
		}
	}
	if err := db.channel.WritePage(buf, db.relPage); err != nil {
		return newIoError("write relationships", err)
	}
	return nil
}

func (db *Database) readRelationships() error {
	buf := db.channel.CreatePageBuffer()
	if err := db.channel.ReadPage(buf, db.relPage); err != nil {
		return newIoError("read relationships", err)
	}
	if buf[db.format.OffsetPageType] != byte(jetformat.PageTypeRelationships) {
		return newIoError("read relationships",
			fmt.Errorf("page %d type byte 0x%02x is not a relationships page", db.relPage, buf[db.format.OffsetPageType]))
	}
	order := db.format.ByteOrder()
	count := int(order.Uint16(buf[2:]))

	pos := 4
	getString := func() (string, error) {
		if pos+2 > len(buf) {
			return "", newIoError("read relationships", fmt.Errorf("truncated at byte %d", pos))
		}
		n := int(order.Uint16(buf[pos:]))
		pos += 2
		if pos+n > len(buf) {
			return "", newIoError("read relationships", fmt.Errorf("truncated at byte %d", pos))
		}
		s := string(buf[pos : pos+n])
		pos += n
		return s, nil
	}
	for i := 0; i < count; i++ {
		if pos+4 > len(buf) {
			return newIoError("read relationships", fmt.Errorf("truncated at byte %d", pos))
		}
		flags := order.Uint32(buf[pos:])
		pos += 4
		name, err := getString()
		if err != nil {
			return err
		}
		fromTable, err := getString()
		if err != nil {
			return err
		}
		toTable, err := getString()
		if err != nil {
			return err
		}
		if pos+2 > len(buf) {
			return newIoError("read relationships", fmt.Errorf("truncated at byte %d", pos))
		}
		colN := int(order.Uint16(buf[pos:]))
		pos += 2
		fromCols := make([]string, 0, colN)
		toCols := make([]string, 0, colN)
		for j := 0; j < colN; j++ {
			from, err := getString()
			if err != nil {
				return err
			}
			to, err := getString()
			if err != nil {
				return err
			}
			fromCols = append(fromCols, from)
			toCols = append(toCols, to)
		}
		rel, err := NewRelationship(name, fromTable, toTable, fromCols, toCols, flags)
		if err != nil {
			return newIoError("read relationships", err)
		}
		db.relationships = append(db.relationships, rel)
	}
	return nil
}
