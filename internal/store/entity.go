package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// maxConflictRetries bounds how often a read-modify-write transaction is retried when a
// concurrent writer touched the same keys.
const maxConflictRetries = 10

// Entity provides generic CRUD operations for any domain type.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index defines a non-unique secondary index on an entity. One entity may produce several
// values (a mapping indexed by each of its tags) and one value may point at many entities.
type Index[T any] struct {
	name            string
	keyGen          func(*T) []string
	lookupTransform func(string) string // Optional transformation for lookups
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:   s,
		prefix:  prefix,
		indexes: make([]Index[T], 0),
	}
}

// WithIndex adds a secondary index to the entity.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{
		name:   name,
		keyGen: keyGen,
	})
	return e
}

// WithIndexTransform adds a secondary index with lookup transformation.
// The lookupTransform function is applied to search values before index lookup,
// enabling case-insensitive searches, normalization, etc.
func (e *Entity[T]) WithIndexTransform(name string, keyGen func(*T) []string, lookupTransform func(string) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{
		name:            name,
		keyGen:          keyGen,
		lookupTransform: lookupTransform,
	})
	return e
}

// HasIndex reports whether an index with this name exists.
func (e *Entity[T]) HasIndex(name string) bool {
	return slices.ContainsFunc(e.indexes, func(idx Index[T]) bool { return idx.name == name })
}

// Create creates a new entity with the given ID.
// Returns ErrAlreadyExists if an entity with this ID already exists.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	_, err := e.Mutate(ctx, id, func(existing *T) (*T, error) {
		if existing != nil {
			return nil, ErrAlreadyExists.WithMessage(fmt.Sprintf("%s%s already exists", e.prefix, id))
		}
		return entity, nil
	})
	return err
}

// Put stores entity under id, replacing any existing value.
func (e *Entity[T]) Put(ctx context.Context, id string, entity *T) error {
	_, err := e.Mutate(ctx, id, func(*T) (*T, error) { return entity, nil })
	return err
}

// Mutate reads the entity stored under id (nil when absent), passes it to fn and writes
// what fn returns, all in one transaction. Returning nil skips the write. Index entries
// are kept in step with the stored value. created reports whether id was absent.
//
// fn may run more than once when the transaction conflicts with a concurrent writer, so
// it must derive its result only from its argument.
func (e *Entity[T]) Mutate(ctx context.Context, id string, fn func(existing *T) (*T, error)) (created bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err = e.store.update(ctx, func(txn *badger.Txn) error {
		existing, err := e.getTxn(txn, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		created = existing == nil

		next, err := fn(existing)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return e.writeTxn(txn, id, existing, next)
	})
	return created, err
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.getTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// IDsByIndex returns the ids stored under one index value, in key order.
// If the index has a lookup transform, it is applied to the value first.
func (e *Entity[T]) IDsByIndex(ctx context.Context, indexName, value string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(e.indexes, func(i Index[T]) bool { return i.name == indexName })
	if idx < 0 {
		return nil, ErrInvalidInput.WithMessage("unknown index " + indexName)
	}
	if t := e.indexes[idx].lookupTransform; t != nil {
		value = t(value)
	}

	prefix := indexPrefix(e.prefix, indexName, value)
	var ids []string
	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByIndex returns every entity stored under one index value.
func (e *Entity[T]) ListByIndex(ctx context.Context, indexName, value string) ([]*T, error) {
	ids, err := e.IDsByIndex(ctx, indexName, value)
	if err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(ids))
	err = e.store.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			entity, err := e.getTxn(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete deletes an entity by ID.
// This operation is idempotent - it does not return an error if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	_, err := e.BatchDelete(ctx, []string{id})
	return err
}

// BatchDelete removes every listed id with its index entries and returns how many existed.
// Missing ids are skipped. Large batches are split across transactions.
func (e *Entity[T]) BatchDelete(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for len(ids) > 0 {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		n, done := 0, 0
		err := e.store.update(ctx, func(txn *badger.Txn) error {
			n, done = 0, 0
			for _, id := range ids {
				existing, err := e.getTxn(txn, id)
				if errors.Is(err, ErrNotFound) {
					done++
					continue
				}
				if err != nil {
					return err
				}
				if err := e.deleteTxn(txn, id, existing); err != nil {
					if errors.Is(err, badger.ErrTxnTooBig) && done > 0 {
						return nil
					}
					return err
				}
				n++
				done++
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += n
		ids = ids[done:]
	}
	return deleted, nil
}

// List returns an iterator over all entities.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = e.store.db.View(func(txn *badger.Txn) error {
			prefix := []byte(e.prefix)
			indexKeys := []byte(e.prefix + "idx:")

			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				if bytes.HasPrefix(it.Item().Key(), indexKeys) {
					continue
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})
				if err != nil {
					yield(nil, fmt.Errorf("unmarshal %s: %w", it.Item().Key(), err))
					return err
				}

				if !yield(&entity, nil) {
					return nil // Consumer stopped early
				}
			}
			return nil
		})
	}
}

// Collect drains List into a slice.
func (e *Entity[T]) Collect(ctx context.Context) ([]*T, error) {
	var out []*T
	for entity, err := range e.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (e *Entity[T]) getTxn(txn *badger.Txn, id string) (*T, error) {
	key := buildKey(e.prefix, id)
	defer releaseKey(key)

	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound.WithMessage(fmt.Sprintf("%s%s not found", e.prefix, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// writeTxn stores next under id, dropping index entries old had that next does not.
func (e *Entity[T]) writeTxn(txn *badger.Txn, id string, old, next *T) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	for _, idx := range e.indexes {
		newKeys := idx.keyGen(next)
		if old != nil {
			for _, v := range idx.keyGen(old) {
				if slices.Contains(newKeys, v) {
					continue
				}
				if err := txn.Delete(buildIndexKey(e.prefix, idx.name, v, id)); err != nil {
					return fmt.Errorf("failed to delete old index key: %w", err)
				}
			}
		}
		for _, v := range newKeys {
			if v == "" {
				continue
			}
			if err := txn.Set(buildIndexKey(e.prefix, idx.name, v, id), nil); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}

	// The primary key is set from a fresh slice: badger holds on to keys until commit,
	// so a pooled buffer cannot be used here.
	if err := txn.Set([]byte(e.prefix+id), data); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (e *Entity[T]) deleteTxn(txn *badger.Txn, id string, existing *T) error {
	for _, idx := range e.indexes {
		for _, v := range idx.keyGen(existing) {
			if err := txn.Delete(buildIndexKey(e.prefix, idx.name, v, id)); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}
	if err := txn.Delete([]byte(e.prefix + id)); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}
