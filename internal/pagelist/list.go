package pagelist

import (
	"fmt"
	"sort"
	"sync"

	"github.com/local/pdfsnip/internal/document"
)

// List is the ordered set of output pages. The lock is only held for single
// accesses; the renderer walks it by index and treats a missing index as the
// end of work.
type List struct {
	mu      sync.RWMutex
	entries []*Entry
}

// New returns an empty list.
func New() *List { return &List{} }

// Len returns the number of entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At returns the entry at i, or false when i is out of range.
func (l *List) At(i int) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return nil, false
	}
	return l.entries[i], true
}

// Snapshot copies the current order.
func (l *List) Snapshot() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Index returns the position of e, or -1.
func (l *List) Index(e *Entry) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, x := range l.entries {
		if x == e {
			return i
		}
	}
	return -1
}

// Append adds entries at the end.
func (l *List) Append(es ...*Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, es...)
	l.mu.Unlock()
}

// Insert places entries before index at; at == Len appends.
func (l *List) Insert(at int, es ...*Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if at < 0 || at > len(l.entries) {
		return fmt.Errorf("insert at %d: index out of range [0,%d]", at, len(l.entries))
	}
	out := make([]*Entry, 0, len(l.entries)+len(es))
	out = append(out, l.entries[:at]...)
	out = append(out, es...)
	out = append(out, l.entries[at:]...)
	l.entries = out
	return nil
}

// Remove deletes the entries at the given indices and returns them.
// Out-of-range and duplicate indices are ignored.
func (l *List) Remove(indices ...int) []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(l.entries) {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := make([]*Entry, 0, len(l.entries)-len(drop))
	removed := make([]*Entry, 0, len(drop))
	for i, e := range l.entries {
		if drop[i] {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return removed
}

// RemoveDocument deletes every entry of doc and returns how many were removed.
func (l *List) RemoveDocument(doc *document.Handle) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if e.Doc != doc {
			kept = append(kept, e)
		}
	}
	n := len(l.entries) - len(kept)
	l.entries = kept
	return n
}

// Move relocates the entry at from so that it ends up at index to.
func (l *List) Move(from, to int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("move %d -> %d: index out of range [0,%d)", from, to, n)
	}
	if from == to {
		return nil
	}
	e := l.entries[from]
	if from < to {
		copy(l.entries[from:to], l.entries[from+1:to+1])
	} else {
		copy(l.entries[to+1:from+1], l.entries[to:from])
	}
	l.entries[to] = e
	return nil
}

// MoveBefore moves the entries at indices, keeping their relative order, so
// that they sit immediately before the entry currently at target.
// target == Len moves them to the end.
func (l *List) MoveBefore(indices []int, target int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	if target < 0 || target > n {
		return fmt.Errorf("move before %d: index out of range [0,%d]", target, n)
	}
	sel := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= n {
			return fmt.Errorf("move %d: index out of range [0,%d)", i, n)
		}
		sel[i] = true
	}
	order := make([]int, 0, len(sel))
	for i := range sel {
		order = append(order, i)
	}
	sort.Ints(order)

	moved := make([]*Entry, 0, len(order))
	for _, i := range order {
		moved = append(moved, l.entries[i])
	}
	out := make([]*Entry, 0, n)
	for i := 0; i <= n; i++ {
		if i == target {
			out = append(out, moved...)
		}
		if i < n && !sel[i] {
			out = append(out, l.entries[i])
		}
	}
	l.entries = out
	return nil
}

// SetVisible requests rendering of the inclusive range [first, last] and
// returns how many entries changed.
func (l *List) SetVisible(first, last int) int {
	changed := 0
	for i := first; i <= last; i++ {
		e, ok := l.At(i)
		if !ok {
			if i >= 0 {
				break
			}
			continue
		}
		if e.SetNeedsRender(true) {
			changed++
		}
	}
	return changed
}

// MarkAllNeedRender requests rendering of every entry.
func (l *List) MarkAllNeedRender() {
	for _, e := range l.Snapshot() {
		e.SetNeedsRender(true)
	}
}

// InvalidateAll marks every thumbnail stale.
func (l *List) InvalidateAll() {
	for _, e := range l.Snapshot() {
		e.Invalidate()
	}
}

// Documents returns the distinct documents referenced, in first-use order.
func (l *List) Documents() []*document.Handle {
	seen := make(map[*document.Handle]bool)
	var out []*document.Handle
	for _, e := range l.Snapshot() {
		if e.Doc != nil && !seen[e.Doc] {
			seen[e.Doc] = true
			out = append(out, e.Doc)
		}
	}
	return out
}

// Pending counts entries that are requested but not rendered.
func (l *List) Pending() int {
	n := 0
	for _, e := range l.Snapshot() {
		if e.Stale() {
			n++
		}
	}
	return n
}
