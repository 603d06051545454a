package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMem(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(memfs.New(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.Init("cache"))
	return e
}

func TestNewRejectsNil(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	_, err = NewOS("")
	require.Error(t, err)
}

func TestReadWriteDelete(t *testing.T) {
	e := newMem(t)
	p := filepath.Join("cache", "0001")

	b, ok, err := e.Read(p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)

	require.NoError(t, e.Write(p, []byte("first value, longer")))
	require.NoError(t, e.Write(p, []byte("second")))

	b, ok, err = e.Read(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(b), "write must truncate the previous contents")

	exists, err := e.Exists(p)
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := e.Delete(p)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = e.Delete(p)
	require.NoError(t, err)
	assert.False(t, deleted)

	exists, err = e.Exists(p)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAtomicWritesOnDisk(t *testing.T) {
	root := t.TempDir()
	e, err := NewOS(root, WithAtomicWrites(true), WithFileMode(0o600))
	require.NoError(t, err)
	require.NoError(t, e.Init("cache"))

	p := filepath.Join("cache", "abcd")
	require.NoError(t, e.Write(p, []byte("v1")))
	require.NoError(t, e.Write(p, []byte("v2")))

	raw, err := os.ReadFile(filepath.Join(root, p))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(raw))

	// no temp files left behind
	names, err := e.List("cache")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd"}, names)
	entries, err := os.ReadDir(filepath.Join(root, "cache"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListAndDeleteAll(t *testing.T) {
	e := newMem(t)
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, e.Write(filepath.Join("cache", n), []byte(n)))
	}
	require.NoError(t, e.Init(filepath.Join("cache", "sub")))

	names, err := e.List("cache")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)

	n, err := e.DeleteAll("cache")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	names, err = e.List("cache")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestEnumerationFailure(t *testing.T) {
	e := newMem(t)
	_, err := e.List("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnumerate))

	_, err = e.DeleteAll("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnumerate))
}

// Concurrent writers of one path must never leave interleaved bytes.
func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	e, err := NewOS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Init("cache"))
	p := filepath.Join("cache", "hot")

	v1 := bytes.Repeat([]byte{'1'}, 64<<10)
	v2 := bytes.Repeat([]byte{'2'}, 32<<10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _ = e.Write(p, v1) }()
		go func() { defer wg.Done(); _ = e.Write(p, v2) }()
		go func() {
			defer wg.Done()
			b, ok, err := e.Read(p)
			if err != nil || !ok {
				return
			}
			if !bytes.Equal(b, v1) && !bytes.Equal(b, v2) {
				t.Errorf("read torn contents (len=%d)", len(b))
			}
		}()
	}
	wg.Wait()

	b, ok, err := e.Read(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, bytes.Equal(b, v1) || bytes.Equal(b, v2))
	assert.Equal(t, 0, e.locks.Len())
}

func TestConcurrentReadsGetIndependentCopies(t *testing.T) {
	e := newMem(t)
	p := filepath.Join("cache", "x")
	require.NoError(t, e.Write(p, []byte("abc")))

	var wg sync.WaitGroup
	out := make([][]byte, 8)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, _, _ := e.Read(p)
			out[i] = b
		}(i)
	}
	wg.Wait()

	out[0][0] = 'Z'
	for i := 1; i < len(out); i++ {
		assert.Equal(t, "abc", string(out[i]))
	}
}

// A Read that begins after a Write has returned must never see older bytes.
func TestReadAfterWriteSeesLatest(t *testing.T) {
	e := newMem(t)
	p := filepath.Join("cache", "counter")
	require.NoError(t, e.Write(p, []byte("0")))

	const writes = 2000
	var (
		published atomic.Int64
		stale     atomic.Int64
		done      = make(chan struct{})
		wg        sync.WaitGroup
	)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				want := published.Load()
				b, ok, err := e.Read(p)
				if err != nil || !ok {
					t.Errorf("read: ok=%v err=%v", ok, err)
					return
				}
				got, err := strconv.ParseInt(string(b), 10, 64)
				if err != nil {
					t.Errorf("parse %q: %v", b, err)
					return
				}
				if got < want {
					stale.Add(1)
				}
			}
		}()
	}

	for i := int64(1); i <= writes; i++ {
		require.NoError(t, e.Write(p, []byte(strconv.FormatInt(i, 10))))
		published.Store(i)
	}
	close(done)
	wg.Wait()
	assert.Zero(t, stale.Load(), "reads saw bytes older than a completed write")
}

func TestDeleteAllConcurrent(t *testing.T) {
	e, err := NewOS(t.TempDir(), WithDeleteConcurrency(3))
	require.NoError(t, err)
	require.NoError(t, e.Init("cache"))
	for i := 0; i < 50; i++ {
		require.NoError(t, e.Write(filepath.Join("cache", strconv.Itoa(i)), []byte("v")))
	}
	n, err := e.DeleteAll("cache")
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	names, err := e.List("cache")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 0, e.locks.Len())
}
