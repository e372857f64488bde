package pagestore

import "fmt"

// invalidPageNumber marks a PageHolder that currently has no page
// loaded.
const invalidPageNumber = ^uint32(0)

// PageHolder is a BufferHolder that additionally tracks which page
// number is currently loaded, so repeated requests for the same page
// can be satisfied without re-reading.
type PageHolder struct {
	channel *PageChannel
	holder  BufferHolder
	current uint32
}

// NewPageHolder wraps holder (already sized to channel.PageSize()) with
// page-number tracking.
func NewPageHolder(channel *PageChannel, holder BufferHolder) *PageHolder {
	return &PageHolder{channel: channel, holder: holder, current: invalidPageNumber}
}

// GetPage returns the currently loaded page's buffer, or nil if no page
// is loaded.
func (p *PageHolder) GetPage() []byte {
	if p.current == invalidPageNumber {
		return nil
	}
	return p.holder.GetBuffer()
}

// CurrentPageNumber reports which page is loaded, if any.
func (p *PageHolder) CurrentPageNumber() (uint32, bool) {
	if p.current == invalidPageNumber {
		return 0, false
	}
	return p.current, true
}

// SetPage loads pageNumber, re-reading from the channel only if a
// different page (or none) was previously loaded.
func (p *PageHolder) SetPage(pageNumber uint32) ([]byte, error) {
	buf := p.holder.GetBuffer()
	if p.current == pageNumber {
		return buf, nil
	}
	if err := p.channel.ReadPage(buf, pageNumber); err != nil {
		return nil, fmt.Errorf("pagestore: page holder set page %d: %w", pageNumber, err)
	}
	p.current = pageNumber
	return buf, nil
}

// StartNewPage begins populating a fresh, as-yet-unnumbered page: the
// caller fills in the returned buffer, then calls FinishNewPage once an
// allocated page number is known.
func (p *PageHolder) StartNewPage() []byte {
	p.current = invalidPageNumber
	buf := p.holder.GetBuffer()
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// FinishNewPage names the buffer most recently returned by
// StartNewPage, completing the allocate-then-name sequence.
func (p *PageHolder) FinishNewPage(pageNumber uint32) {
	p.current = pageNumber
}

// PossiblyInvalidate drops the holder's notion of the current page if
// pageNumber matches it and buffer is not the holder's own buffer —
// i.e. some other writer dirtied the same page through a different
// buffer and this holder's cached copy can no longer be trusted.
func (p *PageHolder) PossiblyInvalidate(pageNumber uint32, buffer []byte) {
	if p.current != pageNumber {
		return
	}
	own := p.holder.GetBuffer()
	if len(buffer) == len(own) && &buffer[0] == &own[0] {
		return
	}
	p.current = invalidPageNumber
}

// ModCount exposes the underlying holder's allocation counter.
func (p *PageHolder) ModCount() uint64 { return p.holder.ModCount() }
