package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"AnimaRex/internal/domain/models"
	pkgcache "AnimaRex/pkg/cache"
)

const statePrefix = "state:"

// BadgerStateStore keeps component state as JSON values in an embedded Badger database.
type BadgerStateStore struct {
	db *badger.DB
}

func NewBadgerStateStore(db *badger.DB) *BadgerStateStore {
	return &BadgerStateStore{db: db}
}

func (s *BadgerStateStore) Load(_ context.Context, key string, dest any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(statePrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("state %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStateStore) Save(_ context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(statePrefix+key), b)
	})
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStateStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(statePrefix + key))
	})
	if err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

// RedisStateStore keeps component state in the shared cache service without expiry.
type RedisStateStore struct {
	c pkgcache.Service
}

func NewRedisStateStore(c pkgcache.Service) *RedisStateStore {
	return &RedisStateStore{c: c}
}

func (s *RedisStateStore) Load(ctx context.Context, key string, dest any) error {
	err := s.c.Get(ctx, pkgcache.GenerateKey("state", key), dest)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return fmt.Errorf("state %s: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	return nil
}

func (s *RedisStateStore) Save(ctx context.Context, key string, value any) error {
	if err := s.c.Set(ctx, pkgcache.GenerateKey("state", key), value, 0); err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, key string) error {
	if err := s.c.Delete(ctx, pkgcache.GenerateKey("state", key)); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}
