// Package persistence implements the immutable on-disk sorted table.
//
// A table file is a run of records in ascending key order followed by a footer:
//
//	record := keyLen:int64 | key | timestamp:int64 | tombstone:uint8 [| valueLen:int64 | value]
//	footer := offset_0:int64 ... offset_{n-1}:int64 | rowCount:int32
//
// All integers are big-endian. The value part is present only when the
// tombstone flag is 0. offset_i is the absolute position of record i, so any
// record can be reached with two reads relative to end of file.
package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"celldb/pkg/cell"
	"celldb/pkg/dberrors"
	"celldb/pkg/iterator"
	"celldb/pkg/types"
)

const (
	int64Size    = 8
	rowCountSize = 4
	flagSize     = 1
)

// Table is a read handle on one table file. It is opened once and kept open
// until the last reference is released.
type Table struct {
	path string
	gen  types.Generation
	file *os.File
	size int64
	rows int32
	// end of the record region, start of the offset table
	dataEnd int64

	refs          atomic.Int32
	ownerReleased atomic.Bool
}

// Open opens the table file at path and reads its footer.
func Open(path string, gen types.Generation) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table file: %w", err)
	}

	t := &Table{path: path, gen: gen, file: file}
	if err := t.loadFooter(); err != nil {
		if cerr := file.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}
	t.refs.Store(1)

	return t, nil
}

func (t *Table) loadFooter() error {
	info, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat table file: %w", err)
	}
	t.size = info.Size()
	if t.size < rowCountSize {
		return fmt.Errorf("%w: %s is too small to hold a footer", dberrors.ErrCorruptTable, t.path)
	}

	var buf [rowCountSize]byte
	if _, err := t.file.ReadAt(buf[:], t.size-rowCountSize); err != nil {
		return fmt.Errorf("failed to read row count: %w", err)
	}
	rows := int32(binary.BigEndian.Uint32(buf[:]))
	if rows < 0 || int64(rows)*int64Size > t.size-rowCountSize {
		return fmt.Errorf("%w: %s declares %d rows in %d bytes", dberrors.ErrCorruptTable, t.path, rows, t.size)
	}

	t.rows = rows
	t.dataEnd = t.size - rowCountSize - int64(rows)*int64Size
	return nil
}

func (t *Table) Path() string                 { return t.path }
func (t *Table) Generation() types.Generation { return t.gen }
func (t *Table) Size() int64                  { return t.size }

// RowCount returns the number of records in the table.
func (t *Table) RowCount() int {
	return int(t.rows)
}

func (t *Table) readInt64(at int64) (int64, error) {
	var buf [int64Size]byte
	if _, err := t.file.ReadAt(buf[:], at); err != nil {
		return 0, fmt.Errorf("failed to read table %s at %d: %w", t.path, at, err)
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// readBytes reads n bytes at offset, refusing to cross into the footer.
func (t *Table) readBytes(at, n int64) ([]byte, error) {
	if n < 0 || at < 0 || at > t.dataEnd || n > t.dataEnd-at {
		return nil, fmt.Errorf("%w: %s: %d bytes at %d overrun the record region", dberrors.ErrCorruptTable, t.path, n, at)
	}
	buf := make([]byte, n)
	if _, err := t.file.ReadAt(buf, at); err != nil {
		return nil, fmt.Errorf("failed to read table %s at %d: %w", t.path, at, err)
	}
	return buf, nil
}

// Offset returns the absolute position of record i.
func (t *Table) Offset(i int) (int64, error) {
	if i < 0 || i >= int(t.rows) {
		return 0, fmt.Errorf("%w: row %d out of range [0, %d)", dberrors.ErrInvalidArgument, i, t.rows)
	}
	off, err := t.readInt64(t.dataEnd + int64(i)*int64Size)
	if err != nil {
		return 0, err
	}
	if off < 0 || off >= t.dataEnd {
		return 0, fmt.Errorf("%w: %s: offset %d of row %d is outside the record region", dberrors.ErrCorruptTable, t.path, off, i)
	}
	return off, nil
}

// Key reads only the key of record i.
func (t *Table) Key(i int) (types.Key, error) {
	off, err := t.Offset(i)
	if err != nil {
		return nil, err
	}
	keyLen, err := t.readInt64(off)
	if err != nil {
		return nil, err
	}
	return t.readBytes(off+int64Size, keyLen)
}

// Cell reads record i in full.
func (t *Table) Cell(i int) (cell.Cell, error) {
	off, err := t.Offset(i)
	if err != nil {
		return cell.Cell{}, err
	}

	keyLen, err := t.readInt64(off)
	if err != nil {
		return cell.Cell{}, err
	}
	off += int64Size
	key, err := t.readBytes(off, keyLen)
	if err != nil {
		return cell.Cell{}, err
	}
	off += keyLen

	// timestamp and tombstone flag
	head, err := t.readBytes(off, int64Size+flagSize)
	if err != nil {
		return cell.Cell{}, err
	}
	ts := int64(binary.BigEndian.Uint64(head[:int64Size]))
	off += int64Size + flagSize

	if head[int64Size] != 0 {
		return cell.Cell{Key: key, Value: cell.NewTombstone(ts), Generation: t.gen}, nil
	}

	valueLen, err := t.readInt64(off)
	if err != nil {
		return cell.Cell{}, err
	}
	value, err := t.readBytes(off+int64Size, valueLen)
	if err != nil {
		return cell.Cell{}, err
	}

	return cell.Cell{Key: key, Value: cell.NewValue(value, ts), Generation: t.gen}, nil
}

// FindIndex binary searches rows [low, high] for key. It returns the index of
// an exact match, otherwise the insertion point: the smallest index whose key
// is >= key, or high+1 when every key is smaller.
func (t *Table) FindIndex(key types.Key, low, high int) (int, error) {
	for low <= high {
		mid := int(uint(low+high) >> 1)
		midKey, err := t.Key(mid)
		if err != nil {
			return 0, err
		}

		switch c := bytes.Compare(midKey, key); {
		case c < 0:
			low = mid + 1
		case c > 0:
			high = mid - 1
		default:
			return mid, nil
		}
	}
	return low, nil
}

// Get returns the record stored for key, tombstones included.
func (t *Table) Get(key types.Key) (cell.Cell, bool, error) {
	n := t.RowCount()
	if n == 0 {
		return cell.Cell{}, false, nil
	}
	idx, err := t.FindIndex(key, 0, n-1)
	if err != nil || idx >= n {
		return cell.Cell{}, false, err
	}
	found, err := t.Key(idx)
	if err != nil || !bytes.Equal(found, key) {
		return cell.Cell{}, false, err
	}
	c, err := t.Cell(idx)
	if err != nil {
		return cell.Cell{}, false, err
	}
	return c, true, nil
}

// Scan lazily streams the records with key >= from, tagged with the table
// generation. The stream must not outlive the table.
func (t *Table) Scan(from types.Key) iterator.Iterator {
	return &tableIterator{table: t, from: from}
}

type tableIterator struct {
	table   *Table
	from    types.Key
	pos     int
	started bool
	cur     cell.Cell
	err     error
}

func (it *tableIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		it.pos, it.err = it.table.FindIndex(it.from, 0, it.table.RowCount()-1)
		if it.err != nil {
			return false
		}
	}
	if it.pos >= it.table.RowCount() {
		return false
	}

	it.cur, it.err = it.table.Cell(it.pos)
	if it.err != nil {
		return false
	}
	it.pos++
	return true
}

func (it *tableIterator) Cell() cell.Cell { return it.cur }
func (it *tableIterator) Err() error      { return it.err }
func (it *tableIterator) Close() error    { return nil }

// Acquire takes a read reference. It fails once the table has been fully released.
func (t *Table) Acquire() bool {
	for {
		n := t.refs.Load()
		if n <= 0 {
			return false
		}
		if t.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference taken with Acquire. The file handle is closed
// when the last reference goes away.
func (t *Table) Release() error {
	switch n := t.refs.Add(-1); {
	case n == 0:
		if err := t.file.Close(); err != nil {
			return fmt.Errorf("failed to close table file %s: %w", t.path, err)
		}
	case n < 0:
		return fmt.Errorf("table %s released too many times", t.path)
	}
	return nil
}

// Close drops the owner reference. Repeated calls are no-ops.
func (t *Table) Close() error {
	if !t.ownerReleased.CompareAndSwap(false, true) {
		return nil
	}
	return t.Release()
}

// Remove unlinks the table file. Open handles keep reading until released.
func (t *Table) Remove() error {
	if err := os.Remove(t.path); err != nil {
		return fmt.Errorf("failed to remove table file: %w", err)
	}
	return nil
}
