package ioutil

// ReadOnlyChannel wraps a ByteChannel and turns every write attempt
// into ErrReadOnly, used when a Database is opened with ReadOnly: true.
type ReadOnlyChannel struct {
	inner ByteChannel
}

// NewReadOnlyChannel wraps inner so that writes fail hard.
func NewReadOnlyChannel(inner ByteChannel) *ReadOnlyChannel {
	return &ReadOnlyChannel{inner: inner}
}

func (r *ReadOnlyChannel) ReadAt(pos int64, buf []byte) error { return r.inner.ReadAt(pos, buf) }

func (r *ReadOnlyChannel) WriteAt(pos int64, buf []byte) error { return ErrReadOnly }

func (r *ReadOnlyChannel) Size() (int64, error) { return r.inner.Size() }

func (r *ReadOnlyChannel) Truncate(newSize int64) error { return ErrReadOnly }

func (r *ReadOnlyChannel) Close() error { return r.inner.Close() }
