// Package store defines the bounded post cache that pairs delete events with
// the content they deleted.
package store

import "context"

// Value is the retained content of a cached post. Target is "reply", "quote"
// or empty. Values cross the store boundary by copy, never by reference.
type Value struct {
	Text   string   `json:"text"`
	Langs  []string `json:"langs,omitempty"`
	Target string   `json:"target,omitempty"`
}

// TakenPost is a successful correlation: the removed post's value and its
// age in milliseconds of logical time.
type TakenPost struct {
	Value Value
	Age   int64
}

// PostStore is a bounded key-value store over rkeys. All times are logical
// milliseconds from the event stream; age is measured against them, not the
// wall clock. Implementations enforce both bounds (maxAge, maxItems) after
// every mutation, so the count bound holds at any instant and an entry older
// than maxAge relative to the newest inserted time is never retained.
type PostStore interface {
	// Put inserts rkey if absent. A duplicate rkey is a silent no-op: a
	// replayed create must not clobber newer data.
	Put(ctx context.Context, t int64, rkey string, v Value) error

	// Update overwrites the value for rkey if present, keeping its original
	// insertion time. Absent rkey is a silent no-op.
	Update(ctx context.Context, t int64, rkey string, v Value) error

	// Take atomically removes and returns the entry for rkey. It returns nil
	// when the key is absent or the entry's insertion time is older than
	// now-maxAge; an expired entry is still purged.
	Take(ctx context.Context, now int64, rkey string) (*TakenPost, error)

	// Size reports the current entry count.
	Size(ctx context.Context) (int64, error)

	// Oldest returns the insertion time of the oldest resident entry. The
	// second result is false when the store is empty.
	Oldest(ctx context.Context) (int64, bool, error)

	// Newest is Oldest's counterpart for the most recent entry.
	Newest(ctx context.Context) (int64, bool, error)

	// Trim enforces both bounds against now. It is idempotent and safe to
	// call at any time.
	Trim(ctx context.Context, now int64) error

	Close() error
}
