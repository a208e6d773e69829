package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"celldb/pkg/cell"
	"celldb/pkg/clock"
	"celldb/pkg/dberrors"
	"celldb/pkg/iterator"
	"celldb/pkg/listener"
	"celldb/pkg/memtable"
	"celldb/pkg/metrics"
	"celldb/pkg/persistence"
	"celldb/pkg/types"
)

// KV is a live key with its current value.
type KV struct {
	Key   []byte
	Value []byte
}

// state is never modified after it is published.
type state struct {
	mem *memtable.Table
	// ordered by generation
	tables []*persistence.Table
}

type tableWriter func(dir string, gen types.Generation, it iterator.Iterator) (*persistence.Table, error)

// Store is an LSM key-value store rooted in one directory.
//
// Writes go to the memtable under mu. Readers load the current state without
// locking and pin its tables with reference counts, so a scan keeps seeing the
// state it started from while flushes and compactions publish new ones.
type Store struct {
	dir              string
	flushThreshold   int64
	compactThreshold int
	clock            *clock.Monotonic
	logger           *slog.Logger
	metrics          metrics.Collector
	writeTable       tableWriter

	mu     sync.Mutex
	state  atomic.Pointer[state]
	closed atomic.Bool

	compactions chan struct{}
	compactor   *listener.Listener[struct{}]
}

// Open opens the store in dir, creating the directory if needed.
//
// Every table file in dir is opened; a table that cannot be read aborts
// Open. The memtable starts at the generation after the newest table, or at
// 0 for an empty directory.
func Open(dir string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.flushThreshold <= 0 {
		return nil, fmt.Errorf("%w: flush threshold must be positive, got %d", dberrors.ErrInvalidArgument, o.flushThreshold)
	}
	if o.compactThreshold < 0 {
		return nil, fmt.Errorf("%w: compact threshold must not be negative, got %d", dberrors.ErrInvalidArgument, o.compactThreshold)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	tables, err := persistence.FindTables(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}

	var gen types.Generation
	if n := len(tables); n > 0 {
		gen = tables[n-1].Generation() + 1
	}

	s := &Store{
		dir:              dir,
		flushThreshold:   o.flushThreshold,
		compactThreshold: o.compactThreshold,
		clock:            clock.NewMonotonic(o.tp),
		logger:           o.logger.With("dir", dir),
		metrics:          o.metrics,
		writeTable:       persistence.WriteTable,
	}
	s.state.Store(&state{mem: memtable.New(gen, s.clock), tables: tables})

	if s.compactThreshold > 0 {
		s.compactions = make(chan struct{}, 1)
		s.compactor = listener.New("compactor", s.compactions, s.compactInBackground)
		s.compactor.Start(context.Background())
	}

	s.reportState()
	s.logger.Info("store opened", "tables", len(tables), "generation", gen)
	return s, nil
}

// Put stores value under key. Both slices are copied. A write that pushes
// the memtable over the flush threshold flushes it; if that flush fails the
// write stays in the memtable and the flush error is returned.
func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return dberrors.ErrClosed
	}
	st := s.state.Load()
	st.mem.Upsert(bytes.Clone(key), bytes.Clone(value))
	s.metrics.IncCounter("celldb_writes_total", map[string]string{"op": "put"}, 1)

	return s.maybeFlush(st)
}

// Delete records a tombstone for key, whether or not the key exists.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return dberrors.ErrClosed
	}
	st := s.state.Load()
	st.mem.Remove(bytes.Clone(key))
	s.metrics.IncCounter("celldb_writes_total", map[string]string{"op": "delete"}, 1)

	return s.maybeFlush(st)
}

func (s *Store) maybeFlush(st *state) error {
	if st.mem.SizeInBytes() <= s.flushThreshold {
		return nil
	}
	return s.flushLocked()
}

// Get returns the current value of key, or dberrors.ErrNotFound if the key
// was never written or its newest version is a tombstone.
func (s *Store) Get(key []byte) ([]byte, error) {
	st, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release(st.tables)

	var (
		best  cell.Cell
		found bool
	)
	if v, ok := st.mem.Get(key); ok {
		best = cell.Cell{Key: key, Value: v, Generation: st.mem.Generation()}
		found = true
	}
	for _, t := range st.tables {
		c, ok, err := t.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %d: %w", t.Generation(), err)
		}
		if ok && (!found || cell.Less(c, best)) {
			best, found = c, true
		}
	}

	if !found || best.Value.Tombstone {
		return nil, dberrors.ErrNotFound
	}
	return bytes.Clone(best.Value.Payload), nil
}

// Scan streams the live entries with key >= from in ascending key order, as
// of the moment Scan is called. The iterator must be closed, and the cells it
// yields must not be modified.
func (s *Store) Scan(from []byte) (iterator.Iterator, error) {
	st, err := s.acquire()
	if err != nil {
		return nil, err
	}

	it := iterator.Live(iterator.Collapse(iterator.Merge(sources(st, from)...)))
	return iterator.WithCloser(it, func() { s.release(st.tables) }), nil
}

// ScanAll collects up to limit live entries with key >= from. A limit <= 0
// means no limit.
func (s *Store) ScanAll(from []byte, limit int) ([]KV, error) {
	it, err := s.Scan(from)
	if err != nil {
		return nil, err
	}

	var out []KV
	for (limit <= 0 || len(out) < limit) && it.Next() {
		c := it.Cell()
		out = append(out, KV{Key: bytes.Clone(c.Key), Value: bytes.Clone(c.Value.Payload)})
	}
	err = it.Err()
	if cerr := it.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return out, nil
}

// sources returns one stream per table followed by the memtable stream.
func sources(st *state, from []byte) []iterator.Iterator {
	its := make([]iterator.Iterator, 0, len(st.tables)+1)
	for _, t := range st.tables {
		its = append(its, t.Scan(from))
	}
	return append(its, st.mem.Scan(from))
}

// acquire loads the current state and pins its tables. A table may be
// released by a compaction between the load and the pin; the state is then
// reloaded.
func (s *Store) acquire() (*state, error) {
	for {
		if s.closed.Load() {
			return nil, dberrors.ErrClosed
		}
		st := s.state.Load()
		if pinAll(st.tables) {
			return st, nil
		}
	}
}

func pinAll(tables []*persistence.Table) bool {
	for i, t := range tables {
		if !t.Acquire() {
			for _, pinned := range tables[:i] {
				if err := pinned.Release(); err != nil {
					slog.Warn("failed to release table", "path", pinned.Path(), "error", err)
				}
			}
			return false
		}
	}
	return true
}

func (s *Store) release(tables []*persistence.Table) {
	for _, t := range tables {
		if err := t.Release(); err != nil {
			s.logger.Warn("failed to release table", "path", t.Path(), "error", err)
		}
	}
}

func (s *Store) PutString(key, value string) error {
	return s.Put([]byte(key), []byte(value))
}

func (s *Store) GetString(key string) (string, bool, error) {
	val, err := s.Get([]byte(key))
	switch {
	case errors.Is(err, dberrors.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return string(val), true, nil
}

func (s *Store) DeleteString(key string) error {
	return s.Delete([]byte(key))
}

// Close flushes a non-empty memtable and closes every table. If the flush
// fails the store stays open and Close may be retried. Operations on a
// closed store return dberrors.ErrClosed; closing again is a no-op.
func (s *Store) Close() error {
	if s.compactor != nil {
		s.compactor.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}

	s.closed.Store(true)
	if err := persistence.CloseAll(s.state.Load().tables); err != nil {
		return fmt.Errorf("failed to close tables: %w", err)
	}
	s.logger.Info("store closed")
	return nil
}

// TableStats describes one on-disk table.
type TableStats struct {
	Generation types.Generation
	Rows       int
	Bytes      int64
}

type Stats struct {
	Generation      types.Generation
	MemtableBytes   int64
	MemtableEntries int
	Tables          []TableStats
}

func (s *Store) Stats() (Stats, error) {
	if s.closed.Load() {
		return Stats{}, dberrors.ErrClosed
	}
	return statsOf(s.state.Load()), nil
}

func statsOf(st *state) Stats {
	stats := Stats{
		Generation:      st.mem.Generation(),
		MemtableBytes:   st.mem.SizeInBytes(),
		MemtableEntries: st.mem.Len(),
		Tables:          make([]TableStats, 0, len(st.tables)),
	}
	for _, t := range st.tables {
		stats.Tables = append(stats.Tables, TableStats{
			Generation: t.Generation(),
			Rows:       t.RowCount(),
			Bytes:      t.Size(),
		})
	}
	return stats
}

func (s *Store) reportState() {
	stats := statsOf(s.state.Load())
	s.metrics.SetGauge("celldb_generation", nil, float64(stats.Generation))
	s.metrics.SetGauge("celldb_tables", nil, float64(len(stats.Tables)))

	var rows int
	for _, t := range stats.Tables {
		rows += t.Rows
	}
	s.metrics.SetGauge("celldb_table_rows", nil, float64(rows))
}
