package pagestore

import "weak"

// BufferHolder is a reusable scratch-buffer carrier. Every kind shares
// the capability set {GetBuffer, Clear}; dispatch between Hard/Soft/
// None retention is on the concrete type, not on a runtime class
// hierarchy.
type BufferHolder interface {
	// GetBuffer returns the held buffer, allocating one if none is
	// currently retained.
	GetBuffer() []byte

	// Clear drops any retained buffer; the next GetBuffer call
	// allocates a fresh one.
	Clear()

	// ModCount returns how many times GetBuffer has had to allocate a
	// new underlying buffer. Consumers compare counts across calls to
	// detect re-allocation.
	ModCount() uint64
}

// HardBufferHolder retains a strong reference to its buffer: once
// allocated, the buffer survives until Clear is called explicitly.
type HardBufferHolder struct {
	size   int
	buf    []byte
	modCnt uint64
}

// NewHardBufferHolder returns a holder that lazily allocates a size-byte
// buffer on first use and keeps it until Clear.
func NewHardBufferHolder(size int) *HardBufferHolder {
	return &HardBufferHolder{size: size}
}

func (h *HardBufferHolder) GetBuffer() []byte {
	if h.buf == nil {
		h.buf = make([]byte, h.size)
		h.modCnt++
	}
	return h.buf
}

func (h *HardBufferHolder) Clear()           { h.buf = nil }
func (h *HardBufferHolder) ModCount() uint64 { return h.modCnt }

// softBox is the allocation a SoftBufferHolder's weak.Pointer targets.
// The indirection matters: weak.Pointer tracks the box's reachability,
// not the backing array's, so a caller that keeps only the returned
// []byte (and not the box) lets the holder's claim become collectable
// the next time the GC runs. That is the "may be dropped under memory
// pressure" behavior soft retention promises.
type softBox struct {
	data []byte
}

// SoftBufferHolder retains its buffer through a weak.Pointer: the
// runtime is free to collect it, in which case the next GetBuffer
// reallocates and bumps ModCount.
type SoftBufferHolder struct {
	size   int
	ref    weak.Pointer[softBox]
	modCnt uint64
}

// NewSoftBufferHolder returns a holder whose buffer may be collected
// under memory pressure and is recreated lazily on next use.
func NewSoftBufferHolder(size int) *SoftBufferHolder {
	return &SoftBufferHolder{size: size}
}

func (h *SoftBufferHolder) GetBuffer() []byte {
	if box := h.ref.Value(); box != nil {
		return box.data
	}
	box := &softBox{data: make([]byte, h.size)}
	h.ref = weak.Make(box)
	h.modCnt++
	return box.data
}

func (h *SoftBufferHolder) Clear()           { h.ref = weak.Pointer[softBox]{} }
func (h *SoftBufferHolder) ModCount() uint64 { return h.modCnt }

// NoneBufferHolder retains nothing: every GetBuffer call allocates a
// fresh buffer.
type NoneBufferHolder struct {
	size   int
	modCnt uint64
}

// NewNoneBufferHolder returns a holder with no retention.
func NewNoneBufferHolder(size int) *NoneBufferHolder {
	return &NoneBufferHolder{size: size}
}

func (h *NoneBufferHolder) GetBuffer() []byte {
	h.modCnt++
	return make([]byte, h.size)
}

func (h *NoneBufferHolder) Clear() {}
func (h *NoneBufferHolder) ModCount() uint64 { return h.modCnt }
