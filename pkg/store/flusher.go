package store

import (
	"errors"
	"fmt"
	"time"

	"celldb/pkg/cell"
	"celldb/pkg/dberrors"
	"celldb/pkg/iterator"
	"celldb/pkg/memtable"
	"celldb/pkg/persistence"
)

// Flush writes the memtable to a new table. It is a no-op when the memtable
// holds no entries.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return dberrors.ErrClosed
	}
	return s.flushLocked()
}

// flushLocked writes the memtable at its own generation and publishes the new
// table together with an empty memtable at the next generation. On failure
// the current state is left as it was.
func (s *Store) flushLocked() error {
	st := s.state.Load()
	if st.mem.Len() == 0 {
		return nil
	}

	start := time.Now()
	gen := st.mem.Generation()
	table, err := s.writeTable(s.dir, gen, st.mem.Scan(cell.MinKey))
	if err != nil {
		s.metrics.IncCounter("celldb_flush_errors_total", nil, 1)
		return fmt.Errorf("failed to flush memtable at generation %d: %w", gen, err)
	}

	tables := make([]*persistence.Table, 0, len(st.tables)+1)
	tables = append(tables, st.tables...)
	tables = append(tables, table)
	s.state.Store(&state{mem: memtable.New(gen+1, s.clock), tables: tables})

	s.metrics.IncCounter("celldb_flushes_total", nil, 1)
	s.metrics.ObserveHistogram("celldb_flush_seconds", nil, time.Since(start).Seconds())
	s.reportState()
	s.logger.Debug("memtable flushed",
		"generation", gen,
		"rows", table.RowCount(),
		"bytes", table.Size(),
	)

	s.signalCompaction(len(tables))
	return nil
}

// Compact merges every table and the memtable into a single table holding
// only live entries, then deletes the old table files.
//
// The new table is written at the memtable's generation and published before
// any old file is touched, so a failed write leaves all existing tables and
// the memtable in place. Compacting a store with no live data still leaves
// one empty table.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return dberrors.ErrClosed
	}

	start := time.Now()
	st := s.state.Load()
	gen := st.mem.Generation()

	it := iterator.Live(iterator.Collapse(iterator.Merge(sources(st, cell.MinKey)...)))
	table, err := s.writeTable(s.dir, gen, it)
	if cerr := it.Close(); cerr != nil && err == nil {
		err = cerr
		if table != nil {
			err = errors.Join(err, table.Close(), table.Remove())
		}
	}
	if err != nil {
		s.metrics.IncCounter("celldb_compaction_errors_total", nil, 1)
		return fmt.Errorf("failed to write compacted table at generation %d: %w", gen, err)
	}

	s.state.Store(&state{
		mem:    memtable.New(gen+1, s.clock),
		tables: []*persistence.Table{table},
	})

	var errs []error
	for _, old := range st.tables {
		if err := old.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := old.Remove(); err != nil {
			errs = append(errs, err)
		}
	}

	s.metrics.IncCounter("celldb_compactions_total", nil, 1)
	s.metrics.ObserveHistogram("celldb_compaction_seconds", nil, time.Since(start).Seconds())
	s.reportState()
	s.logger.Info("tables compacted",
		"generation", gen,
		"merged", len(st.tables),
		"rows", table.RowCount(),
	)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to remove compacted tables: %w", err)
	}
	return nil
}

func (s *Store) signalCompaction(tables int) {
	if s.compactions == nil || tables < s.compactThreshold {
		return
	}
	select {
	case s.compactions <- struct{}{}:
	default:
	}
}

func (s *Store) compactInBackground(struct{}) error {
	err := s.Compact()
	if errors.Is(err, dberrors.ErrClosed) {
		return nil
	}
	return err
}
