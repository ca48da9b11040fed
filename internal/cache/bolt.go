package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

var resolutionsBucket = []byte("resolutions")

// boltLockTimeout bounds how long OpenBolt waits for the file lock held by
// another process.
const boltLockTimeout = time.Second

// boltCache persists entries in a bbolt file. bbolt takes an exclusive lock on
// the file, so only one cache may have a location open at a time.
type boltCache struct {
	opts options

	mu sync.RWMutex
	db *bolt.DB
}

// OpenBolt opens (creating if needed) a persistent cache at path.
func OpenBolt(path string, opts ...Option) (Cache, error) {
	if path == "" {
		return nil, errors.New("bolt cache: path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltLockTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resolutionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &boltCache{opts: buildOptions(opts), db: db}, nil
}

func (b *boltCache) Get(_ context.Context, key string) (model.ResolutionResult, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return model.ResolutionResult{}, false, ErrClosed
	}

	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(resolutionsBucket).Get([]byte(key)); v != nil {
			// v is only valid for the life of the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return model.ResolutionResult{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	if raw == nil {
		return model.ResolutionResult{}, false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.ResolutionResult{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	now := b.opts.clock()
	if e.expired(now) {
		if err := b.evict(key, now); err != nil {
			return model.ResolutionResult{}, false, fmt.Errorf("evict %s: %w", key, err)
		}
		return model.ResolutionResult{}, false, nil
	}
	return e.Value, true, nil
}

// evict deletes key if it is still expired at now. A Set that landed after the
// read keeps its entry.
func (b *boltCache) evict(key string, now time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(resolutionsBucket)
		v := bucket.Get([]byte(key))
		if v == nil {
			return nil
		}
		var current entry
		if err := json.Unmarshal(v, &current); err == nil && !current.expired(now) {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *boltCache) Set(_ context.Context, key string, value model.ResolutionResult) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	raw, err := json.Marshal(entry{Value: value, ExpiresAt: b.opts.clock().Add(b.opts.ttl)})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resolutionsBucket).Put([]byte(key), raw)
	})
}

func (b *boltCache) Delete(_ context.Context, key string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resolutionsBucket).Delete([]byte(key))
	})
}

func (b *boltCache) Clear(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(resolutionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(resolutionsBucket)
		return err
	})
}

func (b *boltCache) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return ErrClosed
	}
	err := b.db.Close()
	b.db = nil
	return err
}
