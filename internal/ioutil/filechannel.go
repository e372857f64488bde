package ioutil

import (
	"fmt"
	"os"
)

// FileChannel is a ByteChannel backed by an *os.File, delegating reads
// and writes directly to the host OS.
type FileChannel struct {
	file   *os.File
	locked bool
}

// OpenFileChannel opens (creating if necessary, unless readOnly) the
// file at path and returns a FileChannel over it. When exclusive is
// true, an advisory lock is taken so that only one process (and, by
// convention within this package, only one Database handle in this
// process) holds the channel open for writing at a time.
func OpenFileChannel(path string, readOnly bool, exclusive bool) (*FileChannel, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("ioutil: open %q: %w", path, err)
	}

	fc := &FileChannel{file: f}
	if exclusive && !readOnly {
		if err := flockExclusive(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("ioutil: lock %q: %w", path, err)
		}
		fc.locked = true
	}
	return fc, nil
}

// ReadAt implements ByteChannel.
func (fc *FileChannel) ReadAt(pos int64, buf []byte) error {
	_, err := fc.file.ReadAt(buf, pos)
	if err != nil {
		return fmt.Errorf("ioutil: read at %d: %w", pos, err)
	}
	return nil
}

// WriteAt implements ByteChannel.
func (fc *FileChannel) WriteAt(pos int64, buf []byte) error {
	_, err := fc.file.WriteAt(buf, pos)
	if err != nil {
		return fmt.Errorf("ioutil: write at %d: %w", pos, err)
	}
	return nil
}

// Size implements ByteChannel.
func (fc *FileChannel) Size() (int64, error) {
	info, err := fc.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("ioutil: stat: %w", err)
	}
	return info.Size(), nil
}

// Truncate implements ByteChannel.
func (fc *FileChannel) Truncate(newSize int64) error {
	if err := fc.file.Truncate(newSize); err != nil {
		return fmt.Errorf("ioutil: truncate to %d: %w", newSize, err)
	}
	return nil
}

// Close implements ByteChannel, releasing the advisory lock first if
// this FileChannel took one.
func (fc *FileChannel) Close() error {
	if fc.locked {
		_ = flockUnlock(fc.file)
		fc.locked = false
	}
	return fc.file.Close()
}

// Flush implements Flusher by syncing the file to stable storage.
func (fc *FileChannel) Flush() error {
	if err := fc.file.Sync(); err != nil {
		return fmt.Errorf("ioutil: sync: %w", err)
	}
	return nil
}

// TransferTo implements TransferWriter.
func (fc *FileChannel) TransferTo(dst ByteChannel) (int64, error) {
	size, err := fc.Size()
	if err != nil {
		return 0, err
	}
	const bufSize = 64 * 1024
	buf := make([]byte, bufSize)
	var pos, written int64
	for pos < size {
		n := int64(bufSize)
		if pos+n > size {
			n = size - pos
		}
		if err := fc.ReadAt(pos, buf[:n]); err != nil {
			return written, err
		}
		if err := dst.WriteAt(pos, buf[:n]); err != nil {
			return written, err
		}
		pos += n
		written += n
	}
	return written, nil
}
