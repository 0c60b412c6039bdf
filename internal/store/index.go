package store

// Index is an ordered multimap from a string key to ledger sequence ids.
// A positive cap bounds the per-key list; inserting past the cap evicts
// the oldest id. Eviction trims the index only — ledger records are
// never deleted.
type Index struct {
	entries map[string][]uint64
	keys    []string
	cap     int
}

// NewIndex creates an index; cap <= 0 means unbounded.
func NewIndex(cap int) *Index {
	return &Index{
		entries: make(map[string][]uint64),
		cap:     cap,
	}
}

func (ix *Index) Insert(key string, seq uint64) {
	ids, exists := ix.entries[key]
	if !exists {
		ix.keys = append(ix.keys, key)
	}
	ids = append(ids, seq)
	if ix.cap > 0 && len(ids) > ix.cap {
		ids = ids[len(ids)-ix.cap:]
	}
	ix.entries[key] = ids
}

// Lookup returns a copy of the sequence ids for key, oldest first.
func (ix *Index) Lookup(key string) []uint64 {
	ids := ix.entries[key]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

func (ix *Index) Count(key string) int {
	return len(ix.entries[key])
}

// Keys returns index keys in first-insertion order.
func (ix *Index) Keys() []string {
	out := make([]string, len(ix.keys))
	copy(out, ix.keys)
	return out
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

// Entries flattens the index to ordered (key, ids) pairs for
// serialization.
func (ix *Index) Entries() []IndexEntry {
	out := make([]IndexEntry, 0, len(ix.keys))
	for _, key := range ix.keys {
		ids := make([]uint64, len(ix.entries[key]))
		copy(ids, ix.entries[key])
		out = append(out, IndexEntry{Key: key, SequenceIDs: ids})
	}
	return out
}

// Restore replaces the index contents with previously serialized
// entries, preserving their order.
func (ix *Index) Restore(entries []IndexEntry) {
	ix.entries = make(map[string][]uint64, len(entries))
	ix.keys = make([]string, 0, len(entries))
	for _, e := range entries {
		ids := make([]uint64, len(e.SequenceIDs))
		copy(ids, e.SequenceIDs)
		ix.entries[e.Key] = ids
		ix.keys = append(ix.keys, e.Key)
	}
}

type IndexEntry struct {
	Key         string   `json:"key"`
	SequenceIDs []uint64 `json:"sequence_ids"`
}
