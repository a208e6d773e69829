package iterator

import (
	"errors"
	"testing"

	"celldb/pkg/cell"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(key, val string, ts, gen int64) cell.Cell {
	return cell.Cell{Key: []byte(key), Value: cell.NewValue([]byte(val), ts), Generation: gen}
}

func del(key string, ts, gen int64) cell.Cell {
	return cell.Cell{Key: []byte(key), Value: cell.NewTombstone(ts), Generation: gen}
}

func keys(cells []cell.Cell) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, string(c.Key))
	}
	return out
}

type failingIterator struct {
	Iterator
	left int
}

var errRead = errors.New("read failed")

func (f *failingIterator) Next() bool {
	if f.left == 0 {
		return false
	}
	f.left--
	return f.Iterator.Next()
}

func (f *failingIterator) Err() error {
	if f.left == 0 {
		return errRead
	}
	return nil
}

func TestMerge_OrdersByKeyThenRecency(t *testing.T) {
	older := FromSlice([]cell.Cell{put("a", "1", 1, 0), put("c", "old", 1, 0)})
	newer := FromSlice([]cell.Cell{put("b", "2", 2, 1), put("c", "new", 2, 1)})

	got, err := Drain(Merge(older, newer))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "c"}, keys(got))
	assert.Equal(t, "new", string(got[2].Value.Payload))
}

func TestMerge_GenerationBreaksTimestampTie(t *testing.T) {
	disk := FromSlice([]cell.Cell{put("k", "disk", 7, 3)})
	mem := FromSlice([]cell.Cell{del("k", 7, 4)})

	got, err := Drain(Collapse(Merge(disk, mem)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Value.Tombstone)
}

func TestMerge_Empty(t *testing.T) {
	got, err := Drain(Merge())
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Drain(Merge(FromSlice(nil), FromSlice(nil)))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollapseAndLive(t *testing.T) {
	a := FromSlice([]cell.Cell{put("a", "1", 1, 0), put("b", "2", 1, 0), put("d", "4", 1, 0)})
	b := FromSlice([]cell.Cell{del("a", 2, 1), put("c", "3", 2, 1), put("d", "5", 2, 1)})

	got, err := Drain(Live(Collapse(Merge(a, b))))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d"}, keys(got))
	assert.Equal(t, "5", string(got[2].Value.Payload))
}

func TestMerge_PropagatesSourceError(t *testing.T) {
	bad := &failingIterator{
		Iterator: FromSlice([]cell.Cell{put("a", "1", 1, 0), put("b", "2", 1, 0)}),
		left:     1,
	}
	good := FromSlice([]cell.Cell{put("c", "3", 1, 1)})

	_, err := Drain(Live(Collapse(Merge(bad, good))))
	assert.ErrorIs(t, err, errRead)
}

func TestWithCloser_RunsOnce(t *testing.T) {
	calls := 0
	it := WithCloser(FromSlice(nil), func() { calls++ })

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Equal(t, 1, calls)
}
