package store

import "sync"

// indexSep ends the value part of an index key. Values may contain ':' (author names,
// free-form tags), so a byte that never appears in text keeps one value's keys from
// prefix-matching another's.
const indexSep = '\x00'

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix + "idx:" + index name + value + id fits in 256 bytes for nearly all records.
		return make([]byte, 0, 256)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled buffer.
// The returned slice is valid until releaseKey is called.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// indexPrefix returns the scan prefix for every id stored under one index value:
// {prefix}idx:{name}:{value}\x00
func indexPrefix(prefix, indexName, value string) []byte {
	buf := make([]byte, 0, len(prefix)+len(indexName)+len(value)+6)
	buf = append(buf, prefix...)
	buf = append(buf, "idx:"...)
	buf = append(buf, indexName...)
	buf = append(buf, ':')
	buf = append(buf, value...)
	buf = append(buf, indexSep)
	return buf
}

// buildIndexKey constructs the key for one (value, id) entry of a non-unique index.
func buildIndexKey(prefix, indexName, value, id string) []byte {
	return append(indexPrefix(prefix, indexName, value), id...)
}

// releaseKey returns a key buffer to the pool for reuse.
// After calling this, the key slice must not be used.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
