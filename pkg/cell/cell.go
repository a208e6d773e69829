// Package cell defines the versioned entry shared by every layer of the engine.
package cell

import (
	"bytes"
	"cmp"

	"celldb/pkg/types"
)

// MinKey sorts before every other key.
var MinKey = types.Key{}

// Value is a payload or a tombstone plus its creation time.
// Payload is nil if and only if Tombstone is set.
type Value struct {
	Payload   []byte
	Timestamp types.TimestampMs
	Tombstone bool
}

func NewValue(payload []byte, ts types.TimestampMs) Value {
	if payload == nil {
		payload = []byte{}
	}
	return Value{Payload: payload, Timestamp: ts}
}

func NewTombstone(ts types.TimestampMs) Value {
	return Value{Timestamp: ts, Tombstone: true}
}

// Cell is a key with one of its versions, tagged with the generation of
// the table that produced it.
type Cell struct {
	Key        types.Key
	Value      Value
	Generation types.Generation
}

// Compare orders cells by key ascending, then timestamp descending, then
// generation descending, so the winning version of a key comes first.
func Compare(a, b Cell) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Value.Timestamp, a.Value.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(b.Generation, a.Generation)
}

// Less reports whether a sorts before b.
func Less(a, b Cell) bool {
	return Compare(a, b) < 0
}
