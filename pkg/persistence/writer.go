package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"celldb/pkg/cell"
	"celldb/pkg/dberrors"
	"celldb/pkg/iterator"
	"celldb/pkg/types"

	"github.com/google/uuid"
)

// WriteTable streams it into a new table file for gen inside dir and opens it.
//
// Cells must arrive in ascending key order with one cell per key. The file is
// first written under a unique temporary name and then linked to its final
// name, which fails instead of overwriting an existing table. On error no
// file for gen is left behind.
func WriteTable(dir string, gen types.Generation, it iterator.Iterator) (*Table, error) {
	finalPath := filepath.Join(dir, FileName(gen))
	if _, err := os.Lstat(finalPath); err == nil {
		return nil, fmt.Errorf("%w: %s", dberrors.ErrTableExists, finalPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat table file: %w", err)
	}

	tmpPath := finalPath + "." + uuid.NewString() + tmpSuffix
	if err := writeFile(tmpPath, it); err != nil {
		removeQuietly(tmpPath)
		return nil, err
	}

	if err := os.Link(tmpPath, finalPath); err != nil {
		removeQuietly(tmpPath)
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", dberrors.ErrTableExists, finalPath)
		}
		return nil, fmt.Errorf("failed to publish table file: %w", err)
	}
	removeQuietly(tmpPath)
	syncDir(dir)

	table, err := Open(finalPath, gen)
	if err != nil {
		return nil, fmt.Errorf("failed to open written table: %w", err)
	}
	return table, nil
}

func writeFile(path string, it iterator.Iterator) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close table file: %w", cerr)
		}
	}()

	var (
		w       = bufio.NewWriter(file)
		offsets []int64
		pos     int64
	)
	for it.Next() {
		offsets = append(offsets, pos)
		n, err := writeRecord(w, it.Cell())
		if err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		pos += n
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("failed to read source cells: %w", err)
	}

	if len(offsets) > math.MaxInt32 {
		return fmt.Errorf("too many rows for one table: %d", len(offsets))
	}
	for _, off := range offsets {
		if err := binary.Write(w, binary.BigEndian, off); err != nil {
			return fmt.Errorf("failed to write offset table: %w", err)
		}
	}
	if err := binary.Write(w, binary.BigEndian, int32(len(offsets))); err != nil {
		return fmt.Errorf("failed to write row count: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush table file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync table file: %w", err)
	}
	return nil
}

// writeRecord writes one record and returns its encoded length.
func writeRecord(w *bufio.Writer, c cell.Cell) (int64, error) {
	n := int64(int64Size + len(c.Key) + int64Size + flagSize)

	if err := binary.Write(w, binary.BigEndian, int64(len(c.Key))); err != nil {
		return 0, err
	}
	if _, err := w.Write(c.Key); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.BigEndian, c.Value.Timestamp); err != nil {
		return 0, err
	}

	if c.Value.Tombstone {
		return n, w.WriteByte(1)
	}
	if err := w.WriteByte(0); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.BigEndian, int64(len(c.Value.Payload))); err != nil {
		return 0, err
	}
	if _, err := w.Write(c.Value.Payload); err != nil {
		return 0, err
	}

	return n + int64Size + int64(len(c.Value.Payload)), nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove temporary table file", "path", path, "error", err)
	}
}

// syncDir makes the new directory entry durable. Best effort: some
// platforms cannot fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		slog.Warn("failed to open table directory for sync", "dir", dir, "error", err)
		return
	}
	if err := d.Sync(); err != nil {
		slog.Debug("failed to sync table directory", "dir", dir, "error", err)
	}
	if err := d.Close(); err != nil {
		slog.Warn("failed to close table directory", "dir", dir, "error", err)
	}
}
