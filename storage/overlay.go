package storage

import (
	"time"
)

// OverlayStorage composes a primary storage (treated as read-only) with a
// writable secondary. Reads and stats check the primary first; writes and
// deletes always target the secondary; List is the set union. The overlay
// is how a committed, immutable index directory gains a writable delta
// without being touched.
type OverlayStorage struct {
	primary   Storage
	secondary Storage
}

var _ Storage = (*OverlayStorage)(nil)

// NewOverlayStorage composes primary (never written) with secondary (all
// mutations).
func NewOverlayStorage(primary, secondary Storage) *OverlayStorage {
	return &OverlayStorage{primary: primary, secondary: secondary}
}

func (st *OverlayStorage) Create() error {
	return st.secondary.Create()
}

func (st *OverlayStorage) Destroy() error {
	return st.secondary.Destroy()
}

func (st *OverlayStorage) CreateFile(name string) (*Output, error) {
	return st.secondary.CreateFile(name)
}

func (st *OverlayStorage) OpenFile(name string) (*Input, error) {
	if st.primary.FileExists(name) {
		return st.primary.OpenFile(name)
	}

	return st.secondary.OpenFile(name)
}

func (st *OverlayStorage) List() ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, s := range []Storage{st.primary, st.secondary} {
		sub, err := s.List()
		if err != nil {
			return nil, err
		}
		for _, name := range sub {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}

	return names, nil
}

func (st *OverlayStorage) FileExists(name string) bool {
	return st.primary.FileExists(name) || st.secondary.FileExists(name)
}

func (st *OverlayStorage) FileLength(name string) (int64, error) {
	if st.primary.FileExists(name) {
		return st.primary.FileLength(name)
	}

	return st.secondary.FileLength(name)
}

func (st *OverlayStorage) FileModified(name string) (time.Time, error) {
	if st.primary.FileExists(name) {
		return st.primary.FileModified(name)
	}

	return st.secondary.FileModified(name)
}

func (st *OverlayStorage) DeleteFile(name string) error {
	return st.secondary.DeleteFile(name)
}

func (st *OverlayStorage) RenameFile(oldName, newName string, safe bool) error {
	return st.secondary.RenameFile(oldName, newName, safe)
}

func (st *OverlayStorage) Lock(name string) Lock {
	return st.secondary.Lock(name)
}

func (st *OverlayStorage) TempStorage(name string) (Storage, error) {
	return st.secondary.TempStorage(name)
}

func (st *OverlayStorage) Optimize() error {
	return st.secondary.Optimize()
}

func (st *OverlayStorage) ReadOnly() bool {
	return false
}

func (st *OverlayStorage) Close() error {
	return st.secondary.Close()
}
