package kv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// defaultBoltFile and engineBucket match the single-bucket layout of the
// teacher's database/storage.go, generalized from one "blocks" bucket to
// one flat namespace holding every prefixed key spec.md §6 defines
// (merkle/, wallet/, engine/, nullifiers/).
const (
	defaultBoltFile = "umbra.db"
	engineBucket    = "umbra"
)

// BoltStore is the reference kv.Store backed by go.etcd.io/bbolt.
// Grounded on database/storage.go's NewStorage/Close/SaveBlock/GetBlock.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if needed) a bbolt database under dataDir.
func OpenBoltStore(dataDir string) (*BoltStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create data dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dataDir, defaultBoltFile), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open bbolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(engineBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("kv: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(engineBucket)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Put(_ context.Context, key, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(engineBucket)).Put(key, value)
	})
}

func (s *BoltStore) Delete(_ context.Context, key []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(engineBucket)).Delete(key)
	})
}

// Batch applies ops in a single bbolt transaction so a tree write's
// leaves, internal nodes, and meta are flushed together, per spec.md §5's
// "tree write" invariant.
func (s *BoltStore) Batch(_ context.Context, ops []Op) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(engineBucket))
		for _, op := range ops {
			if op.Value == nil {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Iterator(_ context.Context, prefix []byte) (Iterator, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	c := tx.Bucket([]byte(engineBucket)).Cursor()
	return &boltIterator{tx: tx, cursor: c, prefix: prefix, started: false}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltIterator struct {
	tx      *bbolt.Tx
	cursor  *bbolt.Cursor
	prefix  []byte
	started bool
	key     []byte
	val     []byte
}

func (it *boltIterator) Next() bool {
	var k, v []byte
	if !it.started {
		k, v = it.cursor.Seek(it.prefix)
		it.started = true
	} else {
		k, v = it.cursor.Next()
	}
	if k == nil || !bytes.HasPrefix(k, it.prefix) {
		return false
	}
	it.key = append([]byte(nil), k...)
	it.val = append([]byte(nil), v...)
	return true
}

func (it *boltIterator) KeyValue() KeyValue { return KeyValue{Key: it.key, Value: it.val} }
func (it *boltIterator) Err() error         { return nil }
func (it *boltIterator) Close() error       { return it.tx.Rollback() }
