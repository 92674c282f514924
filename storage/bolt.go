package storage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/boltdb/bolt"

	"github.com/quiversearch/quiver/endian"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/stream"
)

// Bucket names inside the Bolt database. dataBucket maps file name to
// contents, metaBucket maps file name to its last-modified time.
var (
	boltDataBucket = []byte("data")
	boltMetaBucket = []byte("meta")
)

// BoltStorage keeps the namespace in a single embedded Bolt database
// file. It trades the many-small-files layout of OSStorage for one
// transactional file, which suits indexes that live alongside other
// application state.
//
// Bolt serializes writers internally, so BoltStorage needs no locking of
// its own beyond the named Lock handles it hands out (process-local, since
// Bolt already excludes other processes from the database file).
type BoltStorage struct {
	path   string
	db     *bolt.DB
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	closed bool
}

var _ Storage = (*BoltStorage)(nil)

// NewBoltStorage creates a storage over the given database file path. The
// database is not opened until Create is called.
func NewBoltStorage(path string) *BoltStorage {
	return &BoltStorage{path: path, locks: make(map[string]*sync.Mutex)}
}

func (st *BoltStorage) Create() error {
	if st.db != nil {
		return nil
	}
	db, err := bolt.Open(st.path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("%w: opening bolt db %q: %v", errs.ErrStorage, st.path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDataBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltMetaBucket)

		return err
	})
	if err != nil {
		db.Close()

		return fmt.Errorf("%w: initializing bolt db %q: %v", errs.ErrStorage, st.path, err)
	}
	st.db = db

	return nil
}

func (st *BoltStorage) Destroy() error {
	if st.db != nil {
		st.db.Close()
		st.db = nil
		st.closed = false
	}
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: destroying bolt db %q: %v", errs.ErrStorage, st.path, err)
	}

	return nil
}

// CreateFile buffers writes in memory and commits the contents in one
// transaction when the handle is closed.
func (st *BoltStorage) CreateFile(name string) (*Output, error) {
	if st.db == nil {
		return nil, fmt.Errorf("%w: bolt storage not created", errs.ErrStorage)
	}
	mw := newMemWriter()
	commit := func() error {
		err := st.db.Update(func(tx *bolt.Tx) error {
			if err := tx.Bucket(boltDataBucket).Put([]byte(name), mw.bytes()); err != nil {
				return err
			}
			mtime := endian.GetLittleEndianEngine().AppendUint64(nil, uint64(time.Now().UnixNano()))

			return tx.Bucket(boltMetaBucket).Put([]byte(name), mtime)
		})
		if err != nil {
			return fmt.Errorf("%w: committing %q: %v", errs.ErrStorage, name, err)
		}

		return nil
	}

	return NewOutput(name, stream.NewWriter(mw), nil, commit), nil
}

func (st *BoltStorage) OpenFile(name string) (*Input, error) {
	data, err := st.get(boltDataBucket, name)
	if err != nil {
		return nil, err
	}

	return NewInput(name, stream.NewBytesReader(data), nil), nil
}

// get copies the value out of the transaction, since Bolt memory is only
// valid while the transaction is open.
func (st *BoltStorage) get(bucket []byte, name string) ([]byte, error) {
	if st.db == nil {
		return nil, fmt.Errorf("%w: bolt storage not created", errs.ErrStorage)
	}
	var data []byte
	err := st.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
		}
		data = make([]byte, len(v))
		copy(data, v)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

func (st *BoltStorage) List() ([]string, error) {
	if st.db == nil {
		return nil, fmt.Errorf("%w: bolt storage not created", errs.ErrStorage)
	}
	var names []string
	err := st.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltDataBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing bolt db: %v", errs.ErrStorage, err)
	}

	return names, nil
}

func (st *BoltStorage) FileExists(name string) bool {
	if st.db == nil {
		return false
	}
	exists := false
	st.db.View(func(tx *bolt.Tx) error { //nolint:errcheck
		exists = tx.Bucket(boltDataBucket).Get([]byte(name)) != nil

		return nil
	})

	return exists
}

func (st *BoltStorage) FileLength(name string) (int64, error) {
	data, err := st.get(boltDataBucket, name)
	if err != nil {
		return 0, err
	}

	return int64(len(data)), nil
}

func (st *BoltStorage) FileModified(name string) (time.Time, error) {
	raw, err := st.get(boltMetaBucket, name)
	if err != nil {
		return time.Time{}, err
	}
	if len(raw) != 8 {
		return time.Time{}, fmt.Errorf("%w: bad mtime entry for %q", errs.ErrCorrupt, name)
	}
	nanos := endian.GetLittleEndianEngine().Uint64(raw)

	return time.Unix(0, int64(nanos)), nil //nolint:gosec
}

func (st *BoltStorage) DeleteFile(name string) error {
	if !st.FileExists(name) {
		return fmt.Errorf("%w: %q", errs.ErrUnknownFile, name)
	}
	err := st.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltDataBucket).Delete([]byte(name)); err != nil {
			return err
		}

		return tx.Bucket(boltMetaBucket).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("%w: deleting %q: %v", errs.ErrStorage, name, err)
	}

	return nil
}

func (st *BoltStorage) RenameFile(oldName, newName string, safe bool) error {
	if st.db == nil {
		return fmt.Errorf("%w: bolt storage not created", errs.ErrStorage)
	}
	err := st.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(boltDataBucket)
		meta := tx.Bucket(boltMetaBucket)
		v := data.Get([]byte(oldName))
		if v == nil {
			return fmt.Errorf("%w: %q", errs.ErrUnknownFile, oldName)
		}
		if safe && data.Get([]byte(newName)) != nil {
			return fmt.Errorf("%w: %q", errs.ErrFileExists, newName)
		}
		if err := data.Put([]byte(newName), v); err != nil {
			return err
		}
		if mtime := meta.Get([]byte(oldName)); mtime != nil {
			if err := meta.Put([]byte(newName), mtime); err != nil {
				return err
			}
			if err := meta.Delete([]byte(oldName)); err != nil {
				return err
			}
		}

		return data.Delete([]byte(oldName))
	})
	if err != nil {
		return err
	}

	return nil
}

func (st *BoltStorage) Lock(name string) Lock {
	st.mu.Lock()
	defer st.mu.Unlock()
	mu, ok := st.locks[name]
	if !ok {
		mu = &sync.Mutex{}
		st.locks[name] = mu
	}

	return &ramLock{name: name, mu: mu}
}

// TempStorage returns an in-memory scratch storage; transient merge files
// have no reason to round-trip through the database.
func (st *BoltStorage) TempStorage(string) (Storage, error) {
	return NewRAMStorage(), nil
}

func (st *BoltStorage) Optimize() error {
	return nil
}

func (st *BoltStorage) ReadOnly() bool {
	return false
}

func (st *BoltStorage) Close() error {
	if st.closed {
		return fmt.Errorf("%w: bolt storage %q", errs.ErrClosed, st.path)
	}
	st.closed = true
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			return fmt.Errorf("%w: closing bolt db: %v", errs.ErrStorage, err)
		}
		st.db = nil
	}

	return nil
}
