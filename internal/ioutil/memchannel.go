package ioutil

import "fmt"

// chunkSize is the fixed size of each backing chunk. The page channel
// only ever issues page-aligned reads/writes, and every supported page
// size divides chunkSize, so no access ever straddles a chunk boundary.
const chunkSize = 4096

// initialChunkCount is the number of chunk slots MemChannel starts with.
const initialChunkCount = 128

// MemChannel is an in-memory ByteChannel backed by an expanding array of
// fixed-size chunks, doubled in capacity on growth. Chunks are allocated
// lazily: the slice of chunk slots grows eagerly, but an individual
// chunk's backing array is only allocated the first time it is written.
type MemChannel struct {
	chunks []*[chunkSize]byte
	size   int64
}

// NewMemChannel creates an empty in-memory channel.
func NewMemChannel() *MemChannel {
	return &MemChannel{
		chunks: make([]*[chunkSize]byte, initialChunkCount),
	}
}

func (m *MemChannel) ensureChunkSlots(chunkIndex int) {
	if chunkIndex < len(m.chunks) {
		return
	}
	newLen := len(m.chunks)
	if newLen == 0 {
		newLen = initialChunkCount
	}
	for newLen <= chunkIndex {
		newLen *= 2
	}
	grown := make([]*[chunkSize]byte, newLen)
	copy(grown, m.chunks)
	m.chunks = grown
}

// ReadAt implements ByteChannel.
func (m *MemChannel) ReadAt(pos int64, buf []byte) error {
	if pos < 0 || pos+int64(len(buf)) > m.size {
		return fmt.Errorf("ioutil: read [%d,%d) exceeds channel size %d", pos, pos+int64(len(buf)), m.size)
	}
	return m.access(pos, buf, false)
}

// WriteAt implements ByteChannel.
func (m *MemChannel) WriteAt(pos int64, buf []byte) error {
	if pos < 0 {
		return fmt.Errorf("ioutil: negative write position %d", pos)
	}
	if end := pos + int64(len(buf)); end > m.size {
		m.size = end
	}
	return m.access(pos, buf, true)
}

// access copies between buf and the chunk containing pos. The caller
// guarantees (via page alignment) that [pos, pos+len(buf)) never spans
// more than one chunk.
func (m *MemChannel) access(pos int64, buf []byte, write bool) error {
	if len(buf) == 0 {
		return nil
	}
	chunkIndex := int(pos / chunkSize)
	offset := int(pos % chunkSize)
	if offset+len(buf) > chunkSize {
		return fmt.Errorf("ioutil: access at %d of length %d spans a chunk boundary", pos, len(buf))
	}

	m.ensureChunkSlots(chunkIndex)
	chunk := m.chunks[chunkIndex]
	if chunk == nil {
		if !write {
			// Unwritten region of an otherwise-sized channel reads as zero.
			for i := range buf {
				buf[i] = 0
			}
			return nil
		}
		chunk = new([chunkSize]byte)
		m.chunks[chunkIndex] = chunk
	}

	if write {
		copy(chunk[offset:], buf)
	} else {
		copy(buf, chunk[offset:offset+len(buf)])
	}
	return nil
}

// Size implements ByteChannel.
func (m *MemChannel) Size() (int64, error) { return m.size, nil }

// Truncate implements ByteChannel. Chunks entirely above newSize are
// dropped immediately so the in-memory implementation's residency
// reflects the truncation.
func (m *MemChannel) Truncate(newSize int64) error {
	if newSize < 0 {
		return fmt.Errorf("ioutil: negative truncate size %d", newSize)
	}
	m.size = newSize

	keepChunks := int((newSize + chunkSize - 1) / chunkSize)
	for i := keepChunks; i < len(m.chunks); i++ {
		m.chunks[i] = nil
	}

	// Zero the tail of the last retained chunk so bytes beyond newSize
	// never resurface if the channel grows again via WriteAt.
	if keepChunks > 0 && keepChunks <= len(m.chunks) {
		lastIndex := keepChunks - 1
		if chunk := m.chunks[lastIndex]; chunk != nil {
			tailStart := int(newSize % chunkSize)
			if newSize%chunkSize == 0 {
				tailStart = chunkSize
			}
			for i := tailStart; i < chunkSize; i++ {
				chunk[i] = 0
			}
		}
	}
	return nil
}

// Close implements ByteChannel. MemChannel owns no OS resources.
func (m *MemChannel) Close() error { return nil }

// TransferTo implements TransferWriter by streaming full chunks to dst.
func (m *MemChannel) TransferTo(dst ByteChannel) (int64, error) {
	remaining := m.size
	var pos int64
	var written int64
	for remaining > 0 {
		n := int64(chunkSize)
		if n > remaining {
			n = remaining
		}
		buf := make([]byte, n)
		if err := m.access(pos, buf, false); err != nil {
			return written, err
		}
		if err := dst.WriteAt(pos, buf); err != nil {
			return written, err
		}
		pos += n
		remaining -= n
		written += n
	}
	return written, nil
}
