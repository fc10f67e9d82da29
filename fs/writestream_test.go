//go:build linux

package fs

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_WriteStream_Order(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		fp := tempfile(t)
		s, err := f.CreateWriteStream(fp, WriteStreamOptions{})
		require.NoError(t, err)

		errs := make(chan error, 3)
		for _, chunk := range []string{"ab", "cd", "ef"} {
			require.NoError(t, s.Push([]byte(chunk), func(err error) { errs <- err }))
		}
		end, endCh := errCb()
		require.NoError(t, s.End(end))
		require.NoError(t, recv(t, endCh))
		for range 3 {
			require.NoError(t, recv(t, errs))
		}

		data, err := os.ReadFile(fp)
		require.NoError(t, err)
		assert.Equal(t, "abcdef", string(data))
	})
}

func Test_WriteStream_Coalesce(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)
	s, err := f.CreateWriteStream(fp, WriteStreamOptions{Mode: 0o600})
	require.NoError(t, err)

	const N = 3000
	var want bytes.Buffer
	errs := make(chan error, N)
	// all pushed in one loop turn: the first opens, the rest pile up
	onLoop(t, f, func() {
		for i := range N {
			chunk := []byte{byte(i), byte(i >> 8)}
			want.Write(chunk)
			s.push(chunk, func(err error) { errs <- err })
		}
		assert.Len(t, s.queue, N)
	})
	for range N {
		require.NoError(t, recv(t, errs))
	}
	require.NoError(t, s.Close())

	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want.Bytes(), data))

	info, err := os.Stat(fp)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func Test_WriteStream_Writer(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		src := tempfile(t)
		dst := tempfile(t)
		data := randBytes(0x10000*2 + 99)
		require.NoError(t, os.WriteFile(src, data, 0o644))

		r, err := f.CreateReadStream(src, ReadStreamOptions{})
		require.NoError(t, err)
		w, err := f.CreateWriteStream(dst, WriteStreamOptions{})
		require.NoError(t, err)

		n, err := io.Copy(w, r)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		require.NoError(t, w.Close())
		require.NoError(t, r.Close())

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got))
	})
}

func Test_WriteStream_EndEmpty(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)
	require.NoError(t, os.WriteFile(fp, []byte("moo"), 0o644))

	s, err := f.CreateWriteStream(fp, WriteStreamOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// opened and truncated even though nothing was written
	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, s.Close())
	done, ch := errCb()
	require.NoError(t, s.Push([]byte("moo"), done))
	assert.ErrorIs(t, recv(t, ch), ErrWriteAfterEnd)
}

func Test_WriteStream_Errors(t *testing.T) {
	f := createFS(t, false)

	s, err := f.CreateWriteStream(t.TempDir()+"/missing/moo", WriteStreamOptions{})
	require.NoError(t, err)
	_, err = s.Write([]byte("moo"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, s.Close(), os.ErrNotExist)

	assert.ErrorIs(t, s.Push(nil, nil), ErrInvalidArgType)
}

func Test_WriteStream_Destroy(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)

	s, err := f.CreateWriteStream(fp, WriteStreamOptions{})
	require.NoError(t, err)
	pushed, pushedCh := errCb()
	destroyed, destroyedCh := errCb()
	onLoop(t, f, func() {
		s.push([]byte("moo"), pushed)
		s.destroy(destroyed)
	})
	assert.ErrorIs(t, recv(t, pushedCh), ErrStreamDestroyed)
	require.NoError(t, recv(t, destroyedCh))

	var fd int
	onLoop(t, f, func() { fd = s.fd })
	assert.Equal(t, -1, fd)

	require.NoError(t, s.Push([]byte("moo"), pushed))
	assert.ErrorIs(t, recv(t, pushedCh), ErrStreamDestroyed)

	// never opened: nothing to close, nothing created
	s, err = f.CreateWriteStream(fp+".2", WriteStreamOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Destroy(destroyed))
	require.NoError(t, recv(t, destroyedCh))
	assert.NoFileExists(t, fp+".2")
}
