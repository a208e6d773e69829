package types

// Key is an immutable byte slice type alias used for clarity.
type Key = []byte

// Value is an immutable byte slice type alias used for clarity.
type Value = []byte

// Generation identifies one table instance, in memory or on disk.
// Generations are assigned from a single increasing counter.
type Generation = int64

// TimestampMs is a millisecond-precision wall-clock timestamp.
type TimestampMs = int64
