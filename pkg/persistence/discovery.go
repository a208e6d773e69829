package persistence

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"celldb/pkg/types"
)

const (
	Prefix    = "LSM-DB-GEN-"
	Extension = ".data"

	tmpSuffix = ".tmp"
)

// FileName returns the table file name for gen.
func FileName(gen types.Generation) string {
	return Prefix + strconv.FormatInt(gen, 10) + Extension
}

// ParseGeneration extracts the generation from a table file name. Only the
// canonical spelling produced by FileName is accepted.
func ParseGeneration(name string) (types.Generation, bool) {
	if !strings.HasPrefix(name, Prefix) || !strings.HasSuffix(name, Extension) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, Prefix), Extension)
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, false
	}
	gen, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || strconv.FormatInt(gen, 10) != digits {
		return 0, false
	}
	return gen, true
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, Prefix) && strings.HasSuffix(name, tmpSuffix)
}

// FindTables opens every table file in dir, ordered by generation.
//
// Leftover temporary files from interrupted writes are deleted. A table that
// fails to open aborts discovery: tables opened so far are closed and the
// error is returned, since skipping the file would silently drop data.
func FindTables(dir string) ([]*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read table directory: %w", err)
	}

	var tables []*Table
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		if isTempFile(name) {
			slog.Info("removing unfinished table file", "path", path)
			removeQuietly(path)
			continue
		}

		gen, ok := ParseGeneration(name)
		if !ok {
			continue
		}

		table, err := Open(path, gen)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("failed to open table %s: %w", name, err),
				CloseAll(tables),
			)
		}
		tables = append(tables, table)
	}

	slices.SortFunc(tables, func(a, b *Table) int {
		return cmp.Compare(a.gen, b.gen)
	})
	return tables, nil
}

// CloseAll closes every table and joins the errors.
func CloseAll(tables []*Table) error {
	var errs []error
	for _, t := range tables {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
