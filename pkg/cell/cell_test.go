package cell

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Cell
		want int
	}{
		{
			name: "key ascending",
			a:    Cell{Key: []byte("a"), Value: NewValue([]byte("1"), 1)},
			b:    Cell{Key: []byte("b"), Value: NewValue([]byte("1"), 9)},
			want: -1,
		},
		{
			name: "prefix is less",
			a:    Cell{Key: []byte("ab"), Value: NewValue(nil, 1)},
			b:    Cell{Key: []byte("a"), Value: NewValue(nil, 1)},
			want: 1,
		},
		{
			name: "newer timestamp first",
			a:    Cell{Key: []byte("k"), Value: NewValue(nil, 20)},
			b:    Cell{Key: []byte("k"), Value: NewValue(nil, 10)},
			want: -1,
		},
		{
			name: "newer generation first on equal timestamps",
			a:    Cell{Key: []byte("k"), Value: NewTombstone(5), Generation: 1},
			b:    Cell{Key: []byte("k"), Value: NewValue(nil, 5), Generation: 3},
			want: 1,
		},
		{
			name: "equal",
			a:    Cell{Key: []byte("k"), Value: NewValue(nil, 5), Generation: 3},
			b:    Cell{Key: []byte("k"), Value: NewTombstone(5), Generation: 3},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestCompare_SortsWinnerFirst(t *testing.T) {
	cells := []Cell{
		{Key: []byte("b"), Value: NewValue([]byte("old"), 1), Generation: 0},
		{Key: []byte("a"), Value: NewValue([]byte("x"), 1), Generation: 0},
		{Key: []byte("b"), Value: NewValue([]byte("new"), 1), Generation: 2},
		{Key: []byte("b"), Value: NewTombstone(0), Generation: 5},
	}

	slices.SortFunc(cells, Compare)

	require.Len(t, cells, 4)
	assert.Equal(t, "a", string(cells[0].Key))
	assert.Equal(t, "new", string(cells[1].Value.Payload))
	assert.Equal(t, "old", string(cells[2].Value.Payload))
	assert.True(t, cells[3].Value.Tombstone)
}

func TestValueInvariant(t *testing.T) {
	v := NewValue(nil, 1)
	assert.NotNil(t, v.Payload)
	assert.False(t, v.Tombstone)

	ts := NewTombstone(1)
	assert.Nil(t, ts.Payload)
	assert.True(t, ts.Tombstone)
}
