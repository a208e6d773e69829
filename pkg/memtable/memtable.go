package memtable

import (
	"bytes"
	"sync/atomic"

	"celldb/pkg/cell"
	"celldb/pkg/iterator"
	"celldb/pkg/types"

	"github.com/zhangyunhao116/skipmap"
)

type orderedMap = skipmap.FuncMap[[]byte, cell.Value]

// Clock supplies write timestamps in milliseconds.
type Clock interface {
	Now() int64
}

// Table is the mutable, sorted write buffer. It accepts one writer at a time;
// readers may scan concurrently.
type Table struct {
	gen   types.Generation
	clock Clock
	size  atomic.Int64

	underlying *orderedMap
}

func New(gen types.Generation, clock Clock) *Table {
	return &Table{
		gen:   gen,
		clock: clock,
		underlying: skipmap.NewFunc[[]byte, cell.Value](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

// Upsert stores payload under key with the current timestamp.
func (t *Table) Upsert(key types.Key, payload types.Value) {
	val := cell.NewValue(payload, t.clock.Now())

	old, ok := t.underlying.Load(key)
	switch {
	case !ok:
		t.size.Add(int64(len(key)) + int64(len(val.Payload)))
	case old.Tombstone:
		t.size.Add(int64(len(val.Payload)))
	default:
		t.size.Add(int64(len(val.Payload)) - int64(len(old.Payload)))
	}

	t.underlying.Store(key, val)
}

// Remove records a tombstone for key whether or not the key exists.
// Only a live payload being replaced changes the size; the key bytes of a
// delete-only key are never charged.
func (t *Table) Remove(key types.Key) {
	val := cell.NewTombstone(t.clock.Now())

	if old, ok := t.underlying.Load(key); ok && !old.Tombstone {
		t.size.Add(-int64(len(old.Payload)))
	}

	t.underlying.Store(key, val)
}

// Get returns the version stored for key, tombstones included.
func (t *Table) Get(key types.Key) (cell.Value, bool) {
	return t.underlying.Load(key)
}

// Scan returns the entries with key >= from in ascending order, tagged with
// the table generation. Each call snapshots the table into a fresh stream.
func (t *Table) Scan(from types.Key) iterator.Iterator {
	cells := make([]cell.Cell, 0, t.underlying.Len())
	t.underlying.Range(func(key []byte, val cell.Value) bool {
		if bytes.Compare(key, from) >= 0 {
			cells = append(cells, cell.Cell{Key: key, Value: val, Generation: t.gen})
		}
		return true
	})
	return iterator.FromSlice(cells)
}

func (t *Table) SizeInBytes() int64 {
	return t.size.Load()
}

func (t *Table) Generation() types.Generation {
	return t.gen
}

// Len returns the number of keys, tombstones included.
func (t *Table) Len() int {
	return t.underlying.Len()
}
