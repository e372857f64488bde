package pagestore

import (
	"runtime"
	"testing"
)

func TestHardBufferHolderRetainsUntilClear(t *testing.T) {
	h := NewHardBufferHolder(16)
	b1 := h.GetBuffer()
	b2 := h.GetBuffer()
	if &b1[0] != &b2[0] {
		t.Fatalf("hard holder should return the same buffer across calls")
	}
	if h.ModCount() != 1 {
		t.Fatalf("ModCount = %d, want 1", h.ModCount())
	}

	h.Clear()
	b3 := h.GetBuffer()
	if &b1[0] == &b3[0] {
		t.Fatalf("expected a fresh buffer after Clear")
	}
	if h.ModCount() != 2 {
		t.Fatalf("ModCount = %d, want 2 after reallocation", h.ModCount())
	}
}

func TestNoneBufferHolderAlwaysAllocates(t *testing.T) {
	h := NewNoneBufferHolder(8)
	b1 := h.GetBuffer()
	b2 := h.GetBuffer()
	if &b1[0] == &b2[0] {
		t.Fatalf("none holder must allocate a fresh buffer every call")
	}
	if h.ModCount() != 2 {
		t.Fatalf("ModCount = %d, want 2", h.ModCount())
	}
}

func TestSoftBufferHolderCanBeCollectedAndRecreated(t *testing.T) {
	h := NewSoftBufferHolder(8)
	_ = h.GetBuffer()
	if h.ModCount() != 1 {
		t.Fatalf("ModCount = %d, want 1", h.ModCount())
	}

	// Nothing retains the softBox itself (only its backing array, via
	// the already-discarded return value above), so a full GC cycle
	// should make it collectable.
	runtime.GC()
	runtime.GC()

	_ = h.GetBuffer()
	if h.ModCount() < 2 {
		t.Skip("GC did not collect the soft buffer in this run; best-effort retention")
	}
}

func TestPageHolderCachesByPageNumber(t *testing.T) {
	// Exercised indirectly through pagechannel_test.go-style wiring would
	// require a full PageChannel; here we only check the bookkeeping
	// contract that does not require I/O.
	h := NewHardBufferHolder(16)
	ph := &PageHolder{channel: nil, holder: h, current: invalidPageNumber}

	if _, ok := ph.CurrentPageNumber(); ok {
		t.Fatalf("fresh PageHolder should have no current page")
	}

	buf := ph.StartNewPage()
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("StartNewPage buffer should be zeroed")
		}
	}
	ph.FinishNewPage(42)
	got, ok := ph.CurrentPageNumber()
	if !ok || got != 42 {
		t.Fatalf("CurrentPageNumber = (%d, %v), want (42, true)", got, ok)
	}
}

func TestPageHolderPossiblyInvalidate(t *testing.T) {
	h := NewHardBufferHolder(16)
	ph := &PageHolder{channel: nil, holder: h, current: invalidPageNumber}
	ph.StartNewPage()
	ph.FinishNewPage(5)

	// A different buffer for the same page number invalidates.
	other := make([]byte, 16)
	ph.PossiblyInvalidate(5, other)
	if _, ok := ph.CurrentPageNumber(); ok {
		t.Fatalf("expected invalidation for a foreign buffer on the same page")
	}
}
