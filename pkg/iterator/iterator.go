package iterator

import "celldb/pkg/cell"

// Iterator is a single-pass, pull-based stream of cells.
//
//	for it.Next() {
//		c := it.Cell()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	// Next advances to the next cell. It returns false when the stream is
	// exhausted or a read failed.
	Next() bool
	// Cell returns the current cell. Valid only after Next returned true.
	Cell() cell.Cell
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases resources held by the stream.
	Close() error
}

type sliceIterator struct {
	cells []cell.Cell
	pos   int
}

// FromSlice streams cells in the given order.
func FromSlice(cells []cell.Cell) Iterator {
	return &sliceIterator{cells: cells, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.cells) {
		it.pos = len(it.cells)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Cell() cell.Cell { return it.cells[it.pos] }
func (it *sliceIterator) Err() error      { return nil }
func (it *sliceIterator) Close() error    { return nil }

// Drain reads the whole stream into a slice and closes it.
func Drain(it Iterator) ([]cell.Cell, error) {
	var out []cell.Cell
	for it.Next() {
		out = append(out, it.Cell())
	}
	err := it.Err()
	if cerr := it.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WithCloser runs fn once after it is closed.
func WithCloser(it Iterator, fn func()) Iterator {
	return &closerIterator{Iterator: it, fn: fn}
}

type closerIterator struct {
	Iterator
	fn   func()
	done bool
}

func (it *closerIterator) Close() error {
	err := it.Iterator.Close()
	if !it.done {
		it.done = true
		it.fn()
	}
	return err
}
