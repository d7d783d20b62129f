package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"perfmetrics/internal/domain"
)

// encodeEntry serializes a cache entry for the SQL-backed stores.
func encodeEntry(entry *domain.CacheEntry) ([]byte, error) {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry for %s: %w", entry.Symbol, err)
	}
	return data, nil
}

// decodeEntry is the inverse of encodeEntry.
func decodeEntry(data []byte) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	return &entry, nil
}
