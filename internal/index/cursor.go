package index

import (
	"bytes"
	"sort"
)

// Entry is one leaf entry handed out by an EntryCursor.
type Entry struct {
	Key        []byte
	PageNumber uint32
	RowNumber  byte
}

// EntryCursor walks a key range of one IndexData in ascending entry
// order. A cursor holds no pointers into the tree's mutable state, only
// a mod-count snapshot: when the tree changes underneath it, the next
// advance re-seeks to just past the last entry it returned.
type EntryCursor struct {
	d        *IndexData
	node     *node
	entryIdx int
	snapshot uint64

	lastKey []byte // last returned entry, nil before the first

	startPrefix    []byte // nil once the start bound has been satisfied
	startInclusive bool
	endPrefix      []byte
	endInclusive   bool
	hasEnd         bool

	exhausted bool
}

// Cursor returns an EntryCursor over [start, end] with per-bound
// inclusivity; a nil bound means no bound on that side. Bounds are
// value tuples aligned with the index's columns.
func (d *IndexData) Cursor(start []any, startInclusive bool, end []any, endInclusive bool) (*EntryCursor, error) {
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	c := &EntryCursor{d: d, snapshot: d.modCnt, startInclusive: startInclusive, endInclusive: endInclusive}
	if start != nil {
		prefix, err := EncodeKeyPrefix(nil, d.cols, start)
		if err != nil {
			return nil, err
		}
		c.startPrefix = prefix
	}
	if end != nil {
		prefix, err := EncodeKeyPrefix(nil, d.cols, end)
		if err != nil {
			return nil, err
		}
		c.endPrefix = prefix
		c.hasEnd = true
	}
	if err := c.seek(c.startPrefix); err != nil {
		return nil, err
	}
	return c, nil
}

// seek positions the cursor at the first entry >= key (leftmost entry
// for a nil key).
func (c *EntryCursor) seek(key []byte) error {
	n, err := c.d.seekLeaf(key)
	if err != nil {
		return err
	}
	c.node = n
	c.entryIdx = 0
	if key != nil {
		c.entryIdx = sort.Search(len(n.keys), func(i int) bool {
			return bytes.Compare(n.keys[i], key) >= 0
		})
	}
	return nil
}

// Next returns the next entry in range. ok is false once the range is
// exhausted; further calls keep returning false.
func (c *EntryCursor) Next() (Entry, bool, error) {
	if c.exhausted {
		return Entry{}, false, nil
	}
	if c.snapshot != c.d.modCnt {
		// The tree changed underneath us: resume strictly after the
		// last returned entry (or from the start bound if nothing was
		// returned yet).
		resume := c.lastKey
		if resume == nil {
			resume = c.startPrefix
		}
		if err := c.seek(resume); err != nil {
			return Entry{}, false, err
		}
		if c.lastKey != nil {
			if err := c.skipThrough(c.lastKey); err != nil {
				return Entry{}, false, err
			}
		}
		c.snapshot = c.d.modCnt
	}

	for {
		entry, ok, err := c.current()
		if err != nil || !ok {
			return Entry{}, false, err
		}
		c.entryIdx++

		if c.startPrefix != nil && !c.startInclusive && hasPrefix(entry, c.startPrefix) {
			continue
		}
		c.startPrefix = nil

		if c.hasEnd {
			if c.endInclusive {
				if !hasPrefix(entry, c.endPrefix) && bytes.Compare(entry, c.endPrefix) > 0 {
					c.exhausted = true
					return Entry{}, false, nil
				}
			} else if hasPrefix(entry, c.endPrefix) || bytes.Compare(entry, c.endPrefix) > 0 {
				c.exhausted = true
				return Entry{}, false, nil
			}
		}

		c.lastKey = append([]byte(nil), entry...)
		_, page, row, err := SplitEntry(entry)
		if err != nil {
			return Entry{}, false, err
		}
		return Entry{Key: entry, PageNumber: page, RowNumber: row}, true, nil
	}
}

// current yields the entry under the cursor, following leaf links past
// exhausted nodes.
func (c *EntryCursor) current() ([]byte, bool, error) {
	for c.entryIdx >= len(c.node.keys) {
		if c.node.next == 0 {
			c.exhausted = true
			return nil, false, nil
		}
		n, err := c.d.readNode(c.node.next)
		if err != nil {
			return nil, false, err
		}
		c.node = n
		c.entryIdx = 0
	}
	return c.node.keys[c.entryIdx], true, nil
}

// skipThrough advances past every entry <= key.
func (c *EntryCursor) skipThrough(key []byte) error {
	for {
		entry, ok, err := c.current()
		if err != nil || !ok {
			return err
		}
		if bytes.Compare(entry, key) > 0 {
			return nil
		}
		c.entryIdx++
	}
}

func hasPrefix(entry, prefix []byte) bool {
	return len(entry) >= len(prefix) && bytes.Equal(entry[:len(prefix)], prefix)
}
