package index

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ambermdb/jetcore/internal/jetformat"
	"github.com/ambermdb/jetcore/internal/pagestore"
)

var (
	// ErrDuplicateKey reports an insertion whose key prefix already
	// exists on a unique index.
	ErrDuplicateKey = errors.New("index: duplicate key on unique index")

	// ErrEntryNotFound reports a deletion of an entry the tree does not
	// hold.
	ErrEntryNotFound = errors.New("index: entry not found")
)

// IndexData is one physical B-tree over encoded composite keys. Several
// logical indexes may share one IndexData; only their names and type
// tags differ.
type IndexData struct {
	channel     *pagestore.PageChannel
	f           *jetformat.Format
	cols        []IndexColumn
	unique      bool
	ignoreNulls bool

	rootPage    uint32
	initialized bool
	modCnt      uint64
	nullPrefix  []byte

	// allocHook, when set, observes every page the tree allocates for
	// itself (splits, root growth) so the owning table can record it in
	// its usage map.
	allocHook func(pageNumber uint32) error
}

// OnAllocate registers a hook observing the tree's page allocations.
func (d *IndexData) OnAllocate(fn func(pageNumber uint32) error) { d.allocHook = fn }

// allocatePage extends the channel by one page and reports it to the
// allocation hook.
func (d *IndexData) allocatePage() (uint32, error) {
	n, err := d.channel.AllocateNewPage()
	if err != nil {
		return 0, err
	}
	if d.allocHook != nil {
		if err := d.allocHook(n); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// CreateIndexData allocates a fresh tree (an empty root leaf) and
// returns it already initialized.
func CreateIndexData(channel *pagestore.PageChannel, f *jetformat.Format, cols []IndexColumn, unique, ignoreNulls bool) (*IndexData, error) {
	root, err := channel.AllocateNewPage()
	if err != nil {
		return nil, fmt.Errorf("index: allocate root: %w", err)
	}
	d := &IndexData{
		channel: channel, f: f, cols: cols,
		unique: unique, ignoreNulls: ignoreNulls,
		rootPage: root, initialized: true,
		nullPrefix: NullPrefix(cols),
	}
	if err := d.writeNode(&node{pageNumber: root, leaf: true}); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenIndexData binds an existing tree without reading any of its
// pages; the first AddRow, DeleteRow, or Cursor call initializes it.
func OpenIndexData(channel *pagestore.PageChannel, f *jetformat.Format, cols []IndexColumn, unique, ignoreNulls bool, rootPage uint32) *IndexData {
	return &IndexData{
		channel: channel, f: f, cols: cols,
		unique: unique, ignoreNulls: ignoreNulls,
		rootPage:   rootPage,
		nullPrefix: NullPrefix(cols),
	}
}

// Initialize reads and validates the root page. It is idempotent and
// forced by every operation that touches the tree.
func (d *IndexData) Initialize() error {
	if d.initialized {
		return nil
	}
	if _, err := d.readNode(d.rootPage); err != nil {
		return err
	}
	d.initialized = true
	return nil
}

// RootPage returns the tree's root page number, which is stable for
// the tree's lifetime (root splits grow downward, reusing the page).
func (d *IndexData) RootPage() uint32 { return d.rootPage }

// ModCount returns the tree's mutation counter.
func (d *IndexData) ModCount() uint64 { return d.modCnt }

// IsUnique reports the unique constraint.
func (d *IndexData) IsUnique() bool { return d.unique }

// IgnoreNulls reports whether all-null tuples are left unindexed.
func (d *IndexData) IgnoreNulls() bool { return d.ignoreNulls }

// Columns returns the indexed columns in index order.
func (d *IndexData) Columns() []IndexColumn { return d.cols }

func (d *IndexData) readNode(pageNumber uint32) (*node, error) {
	buf := d.channel.CreatePageBuffer()
	if err := d.channel.ReadPage(buf, pageNumber); err != nil {
		return nil, err
	}
	return parseNode(buf, pageNumber, d.f)
}

func (d *IndexData) writeNode(n *node) error {
	buf := d.channel.CreatePageBuffer()
	if err := n.writeTo(buf, d.f); err != nil {
		return err
	}
	return d.channel.WritePage(buf, n.pageNumber)
}

// maxEntrySize is the largest entry a freshly split (single-entry) node
// can hold; anything bigger can never be stored.
func (d *IndexData) maxEntrySize() int {
	return d.channel.PageSize() - d.f.OffsetIndexEntriesData - 6
}

// AddRow computes the entry for values at (pageNumber, rowNumber) and
// inserts it in sorted position, splitting nodes as needed. All-null
// tuples are not indexed when the index ignores nulls.
func (d *IndexData) AddRow(values []any, pageNumber uint32, rowNumber byte) error {
	if err := d.Initialize(); err != nil {
		return err
	}
	if d.ignoreNulls && allNull(values) {
		return nil
	}
	prefix, err := EncodeKeyPrefix(nil, d.cols, values)
	if err != nil {
		return err
	}
	entry := AppendRowIdSuffix(prefix, pageNumber, rowNumber)
	if len(entry) > d.maxEntrySize() {
		return fmt.Errorf("index: entry of %d bytes cannot fit an empty node", len(entry))
	}
	sp, err := d.insert(d.rootPage, entry)
	if err != nil {
		return err
	}
	if sp != nil {
		if err := d.growRoot(sp); err != nil {
			return err
		}
	}
	d.modCnt++
	return nil
}

// DeleteRow removes the exact (key, RowId) entry for values. Underflow
// never merges: empty leaves are kept and reused.
func (d *IndexData) DeleteRow(values []any, pageNumber uint32, rowNumber byte) error {
	if err := d.Initialize(); err != nil {
		return err
	}
	if d.ignoreNulls && allNull(values) {
		return nil
	}
	prefix, err := EncodeKeyPrefix(nil, d.cols, values)
	if err != nil {
		return err
	}
	entry := AppendRowIdSuffix(prefix, pageNumber, rowNumber)
	found, err := d.remove(d.rootPage, entry)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: RowId (%d, %d)", ErrEntryNotFound, pageNumber, rowNumber)
	}
	d.modCnt++
	return nil
}

type split struct {
	page   uint32
	minKey []byte
}

// childIndexFor picks the subtree a key belongs to: the last child
// whose smallest key does not exceed it.
func (n *node) childIndexFor(key []byte) int {
	i := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) > 0
	}) - 1
	if i < 0 {
		i = 0
	}
	return i
}

func (d *IndexData) insert(pageNumber uint32, entry []byte) (*split, error) {
	n, err := d.readNode(pageNumber)
	if err != nil {
		return nil, err
	}

	if n.leaf {
		pos := sort.Search(len(n.keys), func(i int) bool {
			return bytes.Compare(n.keys[i], entry) >= 0
		})
		if pos < len(n.keys) && bytes.Equal(n.keys[pos], entry) {
			return nil, fmt.Errorf("index: entry already present for its RowId")
		}
		if d.unique {
			prefix := entry[:len(entry)-rowIdSuffixLen]
			nullOk := bytes.Equal(prefix, d.nullPrefix) && !d.ignoreNulls
			if !nullOk {
				// Entries sharing the prefix would be the immediate
				// neighbors; at a leaf boundary the neighbor lives on
				// the adjacent leaf.
				var neighbors [][]byte
				if pos > 0 {
					neighbors = append(neighbors, n.keys[pos-1])
				} else if n.prev != 0 {
					prev, err := d.readNode(n.prev)
					if err != nil {
						return nil, err
					}
					if len(prev.keys) > 0 {
						neighbors = append(neighbors, prev.keys[len(prev.keys)-1])
					}
				}
				if pos < len(n.keys) {
					neighbors = append(neighbors, n.keys[pos])
				} else if n.next != 0 {
					next, err := d.readNode(n.next)
					if err != nil {
						return nil, err
					}
					if len(next.keys) > 0 {
						neighbors = append(neighbors, next.keys[0])
					}
				}
				for _, other := range neighbors {
					if len(other) >= rowIdSuffixLen && bytes.Equal(other[:len(other)-rowIdSuffixLen], prefix) {
						return nil, ErrDuplicateKey
					}
				}
			}
		}
		n.insertKeyAt(pos, entry, 0)
		if n.serializedSize(d.f) > d.channel.PageSize() {
			return d.splitLeaf(n)
		}
		return nil, d.writeNode(n)
	}

	if len(n.keys) == 0 {
		return nil, fmt.Errorf("index: interior page %d has no children", pageNumber)
	}
	idx := n.childIndexFor(entry)
	dirty := false
	if idx == 0 && bytes.Compare(entry, n.keys[0]) < 0 {
		// The new entry becomes the subtree's smallest key.
		n.keys[0] = append([]byte(nil), entry...)
		dirty = true
	}
	sp, err := d.insert(n.children[idx], entry)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		if dirty {
			return nil, d.writeNode(n)
		}
		return nil, nil
	}
	n.insertKeyAt(idx+1, sp.minKey, sp.page)
	if n.serializedSize(d.f) > d.channel.PageSize() {
		return d.splitInterior(n)
	}
	return nil, d.writeNode(n)
}

func (d *IndexData) splitLeaf(n *node) (*split, error) {
	mid := len(n.keys) / 2
	if mid == 0 || mid == len(n.keys) {
		// A median split always leaves both halves non-empty; hitting
		// this means a single entry overflowed an empty page, which the
		// size check on insert already excluded.
		panic("index: leaf split produced an empty half")
	}
	rightNum, err := d.allocatePage()
	if err != nil {
		return nil, fmt.Errorf("index: allocate split page: %w", err)
	}
	right := &node{
		pageNumber: rightNum,
		leaf:       true,
		keys:       append([][]byte(nil), n.keys[mid:]...),
		prev:       n.pageNumber,
		next:       n.next,
	}
	n.keys = n.keys[:mid]
	oldNext := n.next
	n.next = rightNum

	if err := d.writeNode(right); err != nil {
		return nil, err
	}
	if err := d.writeNode(n); err != nil {
		return nil, err
	}
	if oldNext != 0 {
		after, err := d.readNode(oldNext)
		if err != nil {
			return nil, err
		}
		after.prev = rightNum
		if err := d.writeNode(after); err != nil {
			return nil, err
		}
	}
	return &split{page: rightNum, minKey: right.keys[0]}, nil
}

func (d *IndexData) splitInterior(n *node) (*split, error) {
	mid := len(n.keys) / 2
	if mid == 0 || mid == len(n.keys) {
		panic("index: interior split produced an empty half")
	}
	rightNum, err := d.allocatePage()
	if err != nil {
		return nil, fmt.Errorf("index: allocate split page: %w", err)
	}
	right := &node{
		pageNumber: rightNum,
		keys:       append([][]byte(nil), n.keys[mid:]...),
		children:   append([]uint32(nil), n.children[mid:]...),
	}
	n.keys = n.keys[:mid]
	n.children = n.children[:mid]
	if err := d.writeNode(right); err != nil {
		return nil, err
	}
	if err := d.writeNode(n); err != nil {
		return nil, err
	}
	return &split{page: rightNum, minKey: right.keys[0]}, nil
}

// growRoot handles a root split by moving the old root's contents to a
// fresh page and rewriting the root page as an interior node over the
// two halves. The root page number never changes.
func (d *IndexData) growRoot(sp *split) error {
	oldRoot, err := d.readNode(d.rootPage)
	if err != nil {
		return err
	}
	leftNum, err := d.allocatePage()
	if err != nil {
		return fmt.Errorf("index: allocate root shift page: %w", err)
	}
	left := oldRoot
	left.pageNumber = leftNum
	if err := d.writeNode(left); err != nil {
		return err
	}
	if left.leaf {
		// The right half's back link still names the root page.
		right, err := d.readNode(sp.page)
		if err != nil {
			return err
		}
		right.prev = leftNum
		if err := d.writeNode(right); err != nil {
			return err
		}
	}

	var leftMin []byte
	if len(left.keys) > 0 {
		leftMin = left.keys[0]
	}
	root := &node{
		pageNumber: d.rootPage,
		keys:       [][]byte{leftMin, sp.minKey},
		children:   []uint32{leftNum, sp.page},
	}
	return d.writeNode(root)
}

func (d *IndexData) remove(pageNumber uint32, entry []byte) (bool, error) {
	n, err := d.readNode(pageNumber)
	if err != nil {
		return false, err
	}
	if n.leaf {
		pos := sort.Search(len(n.keys), func(i int) bool {
			return bytes.Compare(n.keys[i], entry) >= 0
		})
		if pos >= len(n.keys) || !bytes.Equal(n.keys[pos], entry) {
			return false, nil
		}
		n.removeKeyAt(pos)
		return true, d.writeNode(n)
	}
	if len(n.keys) == 0 {
		return false, nil
	}
	return d.remove(n.children[n.childIndexFor(entry)], entry)
}

// seekLeaf descends to the leaf that would hold key; a nil key selects
// the leftmost leaf.
func (d *IndexData) seekLeaf(key []byte) (*node, error) {
	n, err := d.readNode(d.rootPage)
	if err != nil {
		return nil, err
	}
	for !n.leaf {
		if len(n.keys) == 0 {
			return nil, fmt.Errorf("index: interior page %d has no children", n.pageNumber)
		}
		idx := 0
		if key != nil {
			idx = n.childIndexFor(key)
		}
		n, err = d.readNode(n.children[idx])
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}
