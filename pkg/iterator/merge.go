package iterator

import (
	"bytes"
	"container/heap"
	"errors"

	"celldb/pkg/cell"
)

type heapItem struct {
	cell cell.Cell
	src  int
}

// mergeHeap orders by cell.Compare; ties keep source order so the merge is stable.
type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := cell.Compare(h[i].cell, h[j].cell); c != 0 {
		return c < 0
	}
	return h[i].src < h[j].src
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type mergeIterator struct {
	sources []Iterator
	h       mergeHeap
	cur     cell.Cell
	started bool
	err     error
}

// Merge combines sorted streams into one stream sorted by cell.Compare.
// Every source must already be sorted by cell.Compare.
func Merge(sources ...Iterator) Iterator {
	return &mergeIterator{sources: sources}
}

func (m *mergeIterator) advance(src int) bool {
	it := m.sources[src]
	if it.Next() {
		heap.Push(&m.h, heapItem{cell: it.Cell(), src: src})
		return true
	}
	if err := it.Err(); err != nil {
		m.err = err
		return false
	}
	return true
}

func (m *mergeIterator) Next() bool {
	if m.err != nil {
		return false
	}
	if !m.started {
		m.started = true
		m.h = make(mergeHeap, 0, len(m.sources))
		for i := range m.sources {
			if !m.advance(i) {
				return false
			}
		}
	}
	if m.h.Len() == 0 {
		return false
	}

	top := heap.Pop(&m.h).(heapItem)
	m.cur = top.cell
	return m.advance(top.src)
}

func (m *mergeIterator) Cell() cell.Cell { return m.cur }
func (m *mergeIterator) Err() error      { return m.err }

func (m *mergeIterator) Close() error {
	var errs []error
	for _, it := range m.sources {
		if err := it.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type collapseIterator struct {
	Iterator
	cur     cell.Cell
	lastKey []byte
	seen    bool
}

// Collapse keeps only the first cell of every run of equal keys. Applied to
// a Merge it yields the winning version of each key.
func Collapse(it Iterator) Iterator {
	return &collapseIterator{Iterator: it}
}

func (c *collapseIterator) Next() bool {
	for c.Iterator.Next() {
		next := c.Iterator.Cell()
		if c.seen && bytes.Equal(next.Key, c.lastKey) {
			continue
		}
		c.seen = true
		c.lastKey = next.Key
		c.cur = next
		return true
	}
	return false
}

func (c *collapseIterator) Cell() cell.Cell { return c.cur }

type liveIterator struct {
	Iterator
}

// Live drops tombstoned cells.
func Live(it Iterator) Iterator {
	return &liveIterator{Iterator: it}
}

func (l *liveIterator) Next() bool {
	for l.Iterator.Next() {
		if !l.Iterator.Cell().Value.Tombstone {
			return true
		}
	}
	return false
}
