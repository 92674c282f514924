package storage

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/pool"
)

// backends returns a fresh instance of every writable Storage backend.
func backends(t *testing.T) map[string]Storage {
	t.Helper()

	osStore := NewOSStorage(filepath.Join(t.TempDir(), "idx"))
	require.NoError(t, osStore.Create())

	boltStore := NewBoltStorage(filepath.Join(t.TempDir(), "idx.bolt"))
	require.NoError(t, boltStore.Create())
	t.Cleanup(func() { boltStore.Close() }) //nolint:errcheck

	return map[string]Storage{
		"ram":  NewRAMStorage(),
		"os":   osStore,
		"bolt": boltStore,
	}
}

func writeFile(t *testing.T, st Storage, name string, data []byte) {
	t.Helper()
	out, err := st.CreateFile(name)
	require.NoError(t, err)
	require.NoError(t, out.WriteBytes(data))
	require.NoError(t, out.Close())
}

func readFile(t *testing.T, st Storage, name string) []byte {
	t.Helper()
	in, err := st.OpenFile(name)
	require.NoError(t, err)
	data, err := in.ReadAll()
	require.NoError(t, err)
	require.NoError(t, in.Close())

	return data
}

func TestStorage_CreateOpenRoundTrip(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			writeFile(t, st, "alfa", []byte("hello world"))
			require.Equal(t, []byte("hello world"), readFile(t, st, "alfa"))

			n, err := st.FileLength("alfa")
			require.NoError(t, err)
			require.Equal(t, int64(11), n)

			_, err = st.FileModified("alfa")
			require.NoError(t, err)
		})
	}
}

func TestInput_ReadAllInto(t *testing.T) {
	st := NewRAMStorage()
	require.NoError(t, st.Create())
	writeFile(t, st, "alfa", []byte("hello world"))

	buf := pool.GetFileBuffer()
	defer pool.PutFileBuffer(buf)

	in, err := st.OpenFile("alfa")
	require.NoError(t, err)
	data, err := in.ReadAllInto(buf)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.Equal(t, []byte("hello world"), data)

	// Reuse overwrites the staging buffer in place.
	writeFile(t, st, "bravo", []byte("xy"))
	in, err = st.OpenFile("bravo")
	require.NoError(t, err)
	data, err = in.ReadAllInto(buf)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.Equal(t, []byte("xy"), data)
	require.Equal(t, 2, buf.Len())
}

func TestStorage_ListAndExists(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			writeFile(t, st, "alfa", []byte("a"))
			writeFile(t, st, "bravo", []byte("b"))

			names, err := st.List()
			require.NoError(t, err)
			sort.Strings(names)
			require.Equal(t, []string{"alfa", "bravo"}, names)

			require.True(t, st.FileExists("alfa"))
			require.False(t, st.FileExists("charlie"))
		})
	}
}

func TestStorage_OpenMissingFile(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.OpenFile("missing")
			require.ErrorIs(t, err, errs.ErrUnknownFile)

			_, err = st.FileLength("missing")
			require.ErrorIs(t, err, errs.ErrUnknownFile)

			require.ErrorIs(t, st.DeleteFile("missing"), errs.ErrUnknownFile)
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			writeFile(t, st, "alfa", []byte("a"))
			require.NoError(t, st.DeleteFile("alfa"))
			require.False(t, st.FileExists("alfa"))
		})
	}
}

func TestStorage_Rename(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			writeFile(t, st, "alfa", []byte("a"))
			writeFile(t, st, "bravo", []byte("b"))

			// Safe rename onto an existing name fails without mutating.
			err := st.RenameFile("alfa", "bravo", true)
			require.ErrorIs(t, err, errs.ErrFileExists)
			require.Equal(t, []byte("a"), readFile(t, st, "alfa"))
			require.Equal(t, []byte("b"), readFile(t, st, "bravo"))

			// Unsafe rename overwrites.
			require.NoError(t, st.RenameFile("alfa", "bravo", false))
			require.False(t, st.FileExists("alfa"))
			require.Equal(t, []byte("a"), readFile(t, st, "bravo"))
		})
	}
}

func TestStorage_Lock(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l1 := st.Lock("writer")
			ok, err := l1.Acquire()
			require.NoError(t, err)
			require.True(t, ok)

			// A second handle for the same name cannot acquire.
			l2 := st.Lock("writer")
			ok, err = l2.Acquire()
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, l1.Release())

			ok, err = l2.Acquire()
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, l2.Release())

			// Releasing an unheld lock is an error.
			require.Error(t, l2.Release())
		})
	}
}

func TestStorage_WithLock(t *testing.T) {
	st := NewRAMStorage()
	ran := false
	err := WithLock(st.Lock("writer"), func() error {
		ran = true

		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	// The lock is released even though fn ran; reacquire must succeed.
	l := st.Lock("writer")
	ok, err := l.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Release())
}

func TestStorage_TempStorage(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			tmp, err := st.TempStorage("staging")
			require.NoError(t, err)
			writeFile(t, tmp, "scratch", []byte("x"))
			require.True(t, tmp.FileExists("scratch"))
			require.NoError(t, tmp.Destroy())
		})
	}
}

func TestStorage_DoubleCloseFault(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Close())
			require.ErrorIs(t, st.Close(), errs.ErrClosed)
		})
	}
}

func TestOutput_DoubleCloseFault(t *testing.T) {
	st := NewRAMStorage()
	out, err := st.CreateFile("alfa")
	require.NoError(t, err)
	require.NoError(t, out.Close())
	require.ErrorIs(t, out.Close(), errs.ErrClosed)
}

func TestReadOnly_RejectsEveryMutation(t *testing.T) {
	base := NewRAMStorage()
	writeFile(t, base, "alfa", []byte("a"))

	ro := AsReadOnly(base)
	require.True(t, ro.ReadOnly())

	_, err := ro.CreateFile("bravo")
	require.ErrorIs(t, err, errs.ErrReadOnly)
	require.ErrorIs(t, ro.DeleteFile("alfa"), errs.ErrReadOnly)
	require.ErrorIs(t, ro.RenameFile("alfa", "bravo", true), errs.ErrReadOnly)
	require.ErrorIs(t, ro.Destroy(), errs.ErrReadOnly)
	require.ErrorIs(t, ro.Optimize(), errs.ErrReadOnly)

	// No observable mutation happened.
	names, err := ro.List()
	require.NoError(t, err)
	require.Equal(t, []string{"alfa"}, names)
	require.Equal(t, []byte("a"), readFile(t, base, "alfa"))

	// Reads pass through.
	in, err := ro.OpenFile("alfa")
	require.NoError(t, err)
	require.NoError(t, in.Close())
}

func TestOverlay_ReadsPrimaryFirstWritesSecondary(t *testing.T) {
	primary := NewRAMStorage()
	secondary := NewRAMStorage()
	writeFile(t, primary, "base", []byte("from primary"))
	writeFile(t, primary, "both", []byte("primary wins"))
	writeFile(t, secondary, "both", []byte("secondary loses"))

	ov := NewOverlayStorage(AsReadOnly(primary), secondary)

	require.Equal(t, []byte("from primary"), readFile(t, ov, "base"))
	require.Equal(t, []byte("primary wins"), readFile(t, ov, "both"))

	// Writes land in the secondary only.
	writeFile(t, ov, "delta", []byte("new"))
	require.False(t, primary.FileExists("delta"))
	require.True(t, secondary.FileExists("delta"))

	// List is the union.
	names, err := ov.List()
	require.NoError(t, err)
	sort.Strings(names)
	require.Equal(t, []string{"base", "both", "delta"}, names)

	// Deletes target the secondary; the primary copy is untouched.
	require.NoError(t, ov.DeleteFile("both"))
	require.True(t, primary.FileExists("both"))
}

func TestRAMStorage_FileVisibleOnlyAfterClose(t *testing.T) {
	st := NewRAMStorage()
	out, err := st.CreateFile("alfa")
	require.NoError(t, err)
	require.NoError(t, out.WriteBytes([]byte("abc")))
	require.False(t, st.FileExists("alfa"))
	require.NoError(t, out.Close())
	require.True(t, st.FileExists("alfa"))
}
