package memtable

import (
	"testing"

	"celldb/pkg/iterator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns 1, 2, 3, ...
type stepClock struct {
	now int64
}

func (c *stepClock) Now() int64 {
	c.now++
	return c.now
}

func TestTable_SizeAccounting(t *testing.T) {
	mt := New(7, &stepClock{})

	mt.Upsert([]byte("key"), []byte("value"))
	assert.Equal(t, int64(8), mt.SizeInBytes(), "new key charges key and payload")

	mt.Upsert([]byte("key"), []byte("v"))
	assert.Equal(t, int64(4), mt.SizeInBytes(), "overwrite charges the payload delta")

	mt.Remove([]byte("key"))
	assert.Equal(t, int64(3), mt.SizeInBytes(), "remove refunds the live payload only")

	mt.Remove([]byte("key"))
	assert.Equal(t, int64(3), mt.SizeInBytes(), "removing a tombstone is free")

	mt.Upsert([]byte("key"), []byte("abcd"))
	assert.Equal(t, int64(7), mt.SizeInBytes(), "upsert over a tombstone charges the payload only")

	mt.Remove([]byte("ghost"))
	assert.Equal(t, int64(7), mt.SizeInBytes(), "removing an absent key is free")

	assert.Equal(t, 2, mt.Len())
	assert.Equal(t, int64(7), mt.Generation())
}

func TestTable_ScanFrom(t *testing.T) {
	mt := New(3, &stepClock{})
	for _, k := range []string{"d", "b", "a", "c"} {
		mt.Upsert([]byte(k), []byte("v"+k))
	}
	mt.Remove([]byte("b"))

	cells, err := iterator.Drain(mt.Scan([]byte("b")))
	require.NoError(t, err)
	require.Len(t, cells, 3)

	assert.Equal(t, "b", string(cells[0].Key))
	assert.True(t, cells[0].Value.Tombstone)
	assert.Nil(t, cells[0].Value.Payload)
	assert.Equal(t, "c", string(cells[1].Key))
	assert.Equal(t, "vc", string(cells[1].Value.Payload))
	assert.Equal(t, "d", string(cells[2].Key))
	for _, c := range cells {
		assert.Equal(t, int64(3), c.Generation)
	}
}

func TestTable_ScanIsASnapshot(t *testing.T) {
	mt := New(0, &stepClock{})
	mt.Upsert([]byte("a"), []byte("1"))

	it := mt.Scan(nil)
	mt.Upsert([]byte("b"), []byte("2"))

	cells, err := iterator.Drain(it)
	require.NoError(t, err)
	assert.Len(t, cells, 1)

	cells, err = iterator.Drain(mt.Scan(nil))
	require.NoError(t, err)
	assert.Len(t, cells, 2)
}

func TestTable_TimestampsFollowClock(t *testing.T) {
	mt := New(0, &stepClock{})
	mt.Upsert([]byte("a"), []byte("1"))
	mt.Upsert([]byte("a"), []byte("2"))

	v, ok := mt.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, int64(2), v.Timestamp)
	assert.Equal(t, "2", string(v.Payload))

	_, ok = mt.Get([]byte("missing"))
	assert.False(t, ok)
}
