package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "medications:"

// BadgerBackend stores each user document under "medications:<user_id>"
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database at path
func OpenBadger(path string) (*BadgerBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("badger backend requires a path")
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(true). // Put must be durable on return
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Name() string { return "badger" }

func (b *BadgerBackend) Get(ctx context.Context, userID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *BadgerBackend) Put(ctx context.Context, userID string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+userID), doc)
	})
}

func (b *BadgerBackend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	prefix := []byte(badgerKeyPrefix)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			ids = append(ids, strings.TrimPrefix(key, badgerKeyPrefix))
		}
		return nil
	})
	return ids, err
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
