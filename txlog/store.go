// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package txlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/harmony-design/graphcore/storage/badger"
)

// Store is the durable tier behind the transaction log.
//
// # Description
//
// Any key-ordered persistent store satisfies the contract as long as it
// supports ascending range scans by entry id. The log only requires
// Put/Get/Scan/MaxID; Clear exists for the test-only escape hatch.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the log additionally
// serializes writers.
type Store interface {
	// Open prepares the store for use. Idempotent.
	Open(ctx context.Context) error

	// Put durably persists an entry. The entry is not committed until
	// Put returns nil.
	Put(ctx context.Context, entry *Entry) error

	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, id uint64) (*Entry, error)

	// Scan visits entries in ascending id order starting at fromID.
	// The callback returns false to stop early.
	Scan(ctx context.Context, fromID uint64, fn func(entry *Entry) (bool, error)) error

	// MaxID returns the highest id ever stored (0 when empty).
	MaxID(ctx context.Context) (uint64, error)

	// Clear removes every entry. Test-only: violates the append-only
	// invariant by design and must never be called in production paths.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

const entryKeyPrefix = "entry:"

// entryKey generates the key for an entry id: "entry:%016d". Fixed-width
// decimal keeps lexicographic key order equal to numeric id order.
func entryKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", entryKeyPrefix, id))
}

// parseEntryKey extracts the id from an entry key.
func parseEntryKey(key []byte) (uint64, bool) {
	if len(key) <= len(entryKeyPrefix) {
		return 0, false
	}
	var id uint64
	if _, err := fmt.Sscanf(string(key[len(entryKeyPrefix):]), "%016d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// encodeEntry encodes an entry as [4-byte CRC32][gob payload].
func encodeEntry(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())
	out := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(out[:4], crc)
	copy(out[4:], buf.Bytes())
	return out, nil
}

// decodeEntry decodes an entry and verifies its checksum.
func decodeEntry(data []byte) (*Entry, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: entry too short", ErrCorruptedEntry)
	}

	stored := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorruptedEntry, stored, computed)
	}

	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&entry); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &entry, nil
}

// BadgerStore implements Store over an embedded BadgerDB.
//
// Key format: "entry:%016d". Value format: [4-byte CRC32][gob entry].
type BadgerStore struct {
	cfg badger.Config
	db  *badger.DB
}

// NewBadgerStore creates an unopened store; Open must be called before
// any other method (the log does this during Initialize).
func NewBadgerStore(cfg badger.Config) *BadgerStore {
	return &BadgerStore{cfg: cfg}
}

// Open opens the underlying BadgerDB. Idempotent.
func (s *BadgerStore) Open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := badger.Open(s.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.db = db
	return nil
}

// Put persists an entry.
func (s *BadgerStore) Put(ctx context.Context, entry *Entry) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(entryKey(entry.ID), data)
	})
}

// Get returns the entry with the given id.
func (s *BadgerStore) Get(ctx context.Context, id uint64) (*Entry, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}

	var entry *Entry
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(entryKey(id))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry, err = decodeEntry(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Scan visits entries in ascending id order starting at fromID.
func (s *BadgerStore) Scan(ctx context.Context, fromID uint64, fn func(entry *Entry) (bool, error)) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if fromID < 1 {
		fromID = 1
	}

	prefix := []byte(entryKeyPrefix)
	return s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(entryKey(fromID)); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var entry *Entry
			err := it.Item().Value(func(val []byte) error {
				var err error
				entry, err = decodeEntry(val)
				return err
			})
			if err != nil {
				return err
			}

			cont, err := fn(entry)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// MaxID returns the highest id ever stored by seeking the last entry key
// in reverse.
func (s *BadgerStore) MaxID(ctx context.Context) (uint64, error) {
	if s.db == nil {
		return 0, ErrNotInitialized
	}

	var maxID uint64
	prefix := []byte(entryKeyPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seek)

		if it.ValidForPrefix(prefix) {
			if id, ok := parseEntryKey(it.Item().Key()); ok {
				maxID = id
			}
		}
		return nil
	})
	return maxID, err
}

// Clear removes every stored entry. Test-only.
func (s *BadgerStore) Clear(ctx context.Context) error {
	if s.db == nil {
		return ErrNotInitialized
	}

	prefix := []byte(entryKeyPrefix)
	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
