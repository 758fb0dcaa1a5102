package storekv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

// zstdEncoder and zstdDecoder are stateless-per-call and safe for
// concurrent use via EncodeAll/DecodeAll, so one pair is shared by every
// Store. See the klauspost/compress/zstd docs for this guarantee.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// KV is a single key/value pair returned from a scan. Both slices are
// copies; they remain valid after the enclosing transaction closes.
type KV struct {
	Key   []byte
	Value []byte
}

// Options configures Open.
type Options struct {
	// Path is the directory the database file lives in. Empty means
	// ephemeral: a temporary file is used and unlinked immediately.
	Path string
}

// Store wraps a single BoltDB file and the bucket-level operations the
// queue core needs: create/drop bucket, put/get, prefix and range scans,
// atomic batch removal, and a compare-and-swap counter update.
type Store struct {
	db *bolt.DB

	// compress enables zstd compression of values written via Put and
	// ApplyBatch's puts, giving a persistent store page compression on
	// disk. Ephemeral (ephemeral-mode) stores leave it off: there is
	// nothing to save disk space for. Sequence counters go through
	// UpdateAndFetch, which never compresses — the allocator decodes
	// them as raw big-endian bytes.
	compress bool
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	var path string
	if opts.Path == "" {
		f, err := os.CreateTemp("", "keyqueue-*.db")
		if err != nil {
			return nil, fmt.Errorf("storekv: create ephemeral file: %w", err)
		}
		path = f.Name()
		_ = f.Close()
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("storekv: create data dir: %w", err)
		}
		path = filepath.Join(opts.Path, "keyqueue.db")
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storekv: open database: %w", err)
	}

	if opts.Path == "" {
		// Unlink now; the open fd keeps the inode alive until Close.
		_ = os.Remove(path)
	}

	return &Store{db: db, compress: opts.Path != ""}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateBucket creates the named bucket if it does not already exist.
// Idempotent.
func (s *Store) CreateBucket(name []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

// BucketExists reports whether the named bucket is currently present.
func (s *Store) BucketExists(name []byte) bool {
	exists := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(name) != nil
		return nil
	})
	return exists
}

// DropBucket removes the named bucket entirely. The returned bool reports
// whether the bucket existed beforehand.
func (s *Store) DropBucket(name []byte) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(name) == nil {
			return nil
		}
		existed = true
		return tx.DeleteBucket(name)
	})
	return existed, err
}

// Put writes a single key/value pair into bucket, creating the bucket if
// necessary.
func (s *Store) Put(bucket, key, value []byte) error {
	value = s.encode(value)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
}

// Get reads a single value. A nil result with a nil error means the key is
// absent.
func (s *Store) Get(bucket, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decode(out)
}

// encode compresses value when this store was opened persistent.
// Ephemeral stores pass values through untouched.
func (s *Store) encode(value []byte) []byte {
	if !s.compress {
		return value
	}
	return zstdEncoder.EncodeAll(value, make([]byte, 0, len(value)))
}

// decode reverses encode. Values written before compression was enabled,
// or by an ephemeral store, are never seen here since compress is fixed
// for a Store's lifetime.
func (s *Store) decode(value []byte) ([]byte, error) {
	if !s.compress || value == nil {
		return value, nil
	}
	out, err := zstdDecoder.DecodeAll(value, nil)
	if err != nil {
		return nil, fmt.Errorf("storekv: decompress: %w", err)
	}
	return out, nil
}

// ScanPrefix returns every entry in bucket whose key begins with prefix, in
// storage (lexicographic) order, or reversed when reverse is true.
func (s *Store) ScanPrefix(bucket, prefix []byte, reverse bool) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reverse {
		reverseInPlace(out)
	}
	return s.decodeAll(out)
}

// ScanRange returns every entry in bucket with key in [start, end], in
// storage order.
func (s *Store) ScanRange(bucket, start, end []byte) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(start); k != nil && bytes.Compare(k, end) <= 0; k, v = c.Next() {
			out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decodeAll(out)
}

// ScanAll returns every entry in bucket, in storage order.
func (s *Store) ScanAll(bucket []byte) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.decodeAll(out)
}

// decodeAll decompresses every value in kvs in place when this store was
// opened persistent.
func (s *Store) decodeAll(kvs []KV) ([]KV, error) {
	if !s.compress {
		return kvs, nil
	}
	for i, kv := range kvs {
		v, err := s.decode(kv.Value)
		if err != nil {
			return nil, err
		}
		kvs[i].Value = v
	}
	return kvs, nil
}

// ApplyBatch removes and puts entries in bucket as a single atomic
// transaction.
func (s *Store) ApplyBatch(bucket []byte, removals [][]byte, puts []KV) error {
	if len(removals) == 0 && len(puts) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		for _, k := range removals {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for _, kv := range puts {
			if err := b.Put(kv.Key, s.encode(kv.Value)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateAndFetch atomically replaces the value at key with fn's result and
// returns the new value. fn receives nil when the key is absent. This is
// the Go analog of sled's update_and_fetch, used by the sequence
// allocator's compare-and-swap counter bump.
func (s *Store) UpdateAndFetch(bucket, key []byte, fn func(old []byte) []byte) ([]byte, error) {
	var result []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		old := b.Get(key)
		next := fn(old)
		if err := b.Put(key, next); err != nil {
			return err
		}
		result = append([]byte(nil), next...)
		return nil
	})
	return result, err
}

func reverseInPlace(kvs []KV) {
	for i, j := 0, len(kvs)-1; i < j; i, j = i+1, j-1 {
		kvs[i], kvs[j] = kvs[j], kvs[i]
	}
}
