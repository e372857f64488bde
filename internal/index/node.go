package index

import (
	"fmt"

	"github.com/ambermdb/jetcore/internal/jetformat"
)

// node is the in-memory image of one index page. Leaves carry full
// entries (key prefix + RowId suffix); interior nodes carry
// (childPage, smallest-key-of-subtree) pairs. Entry lookup and
// mutation happen on the parsed form; writeTo re-serializes.
type node struct {
	pageNumber uint32
	leaf       bool

	// Leaf and interior both keep their keys here, sorted ascending
	// byte-lexicographically. For interior nodes children[i] is the
	// subtree whose smallest key is keys[i].
	keys     [][]byte
	children []uint32

	// Leaf sibling links, zero when absent.
	prev, next uint32
}

// serializedSize returns the page bytes this node occupies: the fixed
// header plus, per entry, a 2-byte length prefix, the key, and (for
// interior nodes) the 4-byte child pointer.
func (n *node) serializedSize(f *jetformat.Format) int {
	size := f.OffsetIndexEntriesData
	for _, k := range n.keys {
		size += 2 + len(k)
		if !n.leaf {
			size += 4
		}
	}
	return size
}

func parseNode(buf []byte, pageNumber uint32, f *jetformat.Format) (*node, error) {
	order := f.ByteOrder()
	var leaf bool
	switch jetformat.PageType(buf[f.OffsetPageType]) {
	case jetformat.PageTypeIndexLeaf:
		leaf = true
	case jetformat.PageTypeIndexNode:
		leaf = false
	default:
		return nil, fmt.Errorf("index: page %d type byte 0x%02x is not an index page", pageNumber, buf[f.OffsetPageType])
	}

	n := &node{pageNumber: pageNumber, leaf: leaf}
	count := int(order.Uint16(buf[f.OffsetIndexEntryCount:]))
	free := int(order.Uint16(buf[f.OffsetIndexFreeSpace:]))
	if leaf {
		n.prev = order.Uint32(buf[f.OffsetIndexPrevLeaf:])
		n.next = order.Uint32(buf[f.OffsetIndexNextLeaf:])
	}

	pos := f.OffsetIndexEntriesData
	for i := 0; i < count; i++ {
		if pos+2 > free {
			return nil, fmt.Errorf("index: page %d entry %d runs past the free-space mark", pageNumber, i)
		}
		keyLen := int(order.Uint16(buf[pos:]))
		pos += 2
		end := pos + keyLen
		if !leaf {
			end += 4
		}
		if end > free {
			return nil, fmt.Errorf("index: page %d entry %d of %d bytes is impossible", pageNumber, i, keyLen)
		}
		key := make([]byte, keyLen)
		copy(key, buf[pos:pos+keyLen])
		n.keys = append(n.keys, key)
		pos += keyLen
		if !leaf {
			n.children = append(n.children, order.Uint32(buf[pos:]))
			pos += 4
		}
	}
	return n, nil
}

// writeTo serializes the node into buf (a full page buffer).
func (n *node) writeTo(buf []byte, f *jetformat.Format) error {
	size := n.serializedSize(f)
	if size > len(buf) {
		return fmt.Errorf("index: node of %d bytes exceeds the %d-byte page", size, len(buf))
	}
	for i := range buf {
		buf[i] = 0
	}
	order := f.ByteOrder()
	if n.leaf {
		buf[f.OffsetPageType] = byte(jetformat.PageTypeIndexLeaf)
		order.PutUint32(buf[f.OffsetIndexPrevLeaf:], n.prev)
		order.PutUint32(buf[f.OffsetIndexNextLeaf:], n.next)
	} else {
		buf[f.OffsetPageType] = byte(jetformat.PageTypeIndexNode)
	}
	order.PutUint16(buf[f.OffsetIndexEntryCount:], uint16(len(n.keys)))

	pos := f.OffsetIndexEntriesData
	for i, k := range n.keys {
		order.PutUint16(buf[pos:], uint16(len(k)))
		pos += 2
		copy(buf[pos:], k)
		pos += len(k)
		if !n.leaf {
			order.PutUint32(buf[pos:], n.children[i])
			pos += 4
		}
	}
	order.PutUint16(buf[f.OffsetIndexFreeSpace:], uint16(pos))
	return nil
}

// insertKeyAt splices key (and, for interior nodes, child) in at
// position i.
func (n *node) insertKeyAt(i int, key []byte, child uint32) {
	n.keys = append(n.keys, nil)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key
	if !n.leaf {
		n.children = append(n.children, 0)
		copy(n.children[i+1:], n.children[i:])
		n.children[i] = child
	}
}

// removeKeyAt removes entry i.
func (n *node) removeKeyAt(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	if !n.leaf {
		n.children = append(n.children[:i], n.children[i+1:]...)
	}
}
