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

// pullAll drives Pull until EOF and returns every chunk.
func pullAll(t *testing.T, s *ReadStream) [][]byte {
	t.Helper()
	var chunks [][]byte
	pull, ch := capture[[]byte]()
	for {
		require.NoError(t, s.Pull(pull))
		r := recv(t, ch)
		if r.err == io.EOF {
			return chunks
		}
		require.NoError(t, r.err)
		require.NotEmpty(t, r.val)
		chunks = append(chunks, r.val)
	}
}

func Test_ReadStream_Chunks(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		fp := tempfile(t)
		const C = 0x1000
		data := randBytes(5*C + 123)
		require.NoError(t, os.WriteFile(fp, data, 0o644))

		s, err := f.CreateReadStream(fp, ReadStreamOptions{ChunkSize: C})
		require.NoError(t, err)
		chunks := pullAll(t, s)

		assert.Len(t, chunks, (len(data)+C-1)/C)
		for _, c := range chunks[:len(chunks)-1] {
			assert.Len(t, c, C)
		}
		assert.Equal(t, data, bytes.Join(chunks, nil))

		// ended streams stay ended
		pull, ch := capture[[]byte]()
		require.NoError(t, s.Pull(pull))
		assert.ErrorIs(t, recv(t, ch).err, io.EOF)
	})
}

func ptr[T any](v T) *T { return &v }

func Test_ReadStream_Range(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)
	data := randBytes(1000)
	require.NoError(t, os.WriteFile(fp, data, 0o644))
	S := int64(len(data))

	cases := []struct {
		name string
		opts ReadStreamOptions
		want []byte
	}{
		{"all", ReadStreamOptions{}, data},
		{"past end", ReadStreamOptions{Start: S + 1}, nil},
		{"at end", ReadStreamOptions{Start: S}, nil},
		{"start 5 full length", ReadStreamOptions{Start: 5, Length: S}, data[5:]},
		{"start 5", ReadStreamOptions{Start: 5}, data[5:]},
		{"length", ReadStreamOptions{Start: 10, Length: 20}, data[10:30]},
		{"end inclusive", ReadStreamOptions{Start: 10, End: ptr[int64](19)}, data[10:20]},
		{"end zero", ReadStreamOptions{End: ptr[int64](0)}, data[:1]},
		{"start equals end", ReadStreamOptions{Start: 7, End: ptr[int64](7)}, data[7:8]},
		{"end past size", ReadStreamOptions{End: ptr[int64](5000)}, data},
		{"end before start", ReadStreamOptions{Start: 10, End: ptr[int64](5)}, nil},
		{"one byte chunks", ReadStreamOptions{Start: 990, ChunkSize: 1}, data[990:]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := f.CreateReadStream(fp, tc.opts)
			require.NoError(t, err)
			got := bytes.Join(pullAll(t, s), nil)
			assert.Equal(t, len(tc.want), len(got))
			assert.True(t, bytes.Equal(tc.want, got))
		})
	}
}

func Test_ReadStream_Reader(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		fp := tempfile(t)
		data := randBytes(0x10000*3 + 1)
		require.NoError(t, os.WriteFile(fp, data, 0o644))

		s, err := f.CreateReadStream(fp, ReadStreamOptions{})
		require.NoError(t, err)
		got, err := io.ReadAll(s)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got))
		require.NoError(t, s.Close())
	})
}

func Test_ReadStream_Errors(t *testing.T) {
	f := createFS(t, false)

	_, err := f.CreateReadStream("moo", ReadStreamOptions{Start: -1})
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = f.CreateReadStream("moo", ReadStreamOptions{End: ptr[int64](-1)})
	assert.ErrorIs(t, err, ErrOutOfRange)

	s, err := f.CreateReadStream(tempfile(t), ReadStreamOptions{})
	require.NoError(t, err)
	_, err = io.ReadAll(s)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// stays errored
	pull, ch := capture[[]byte]()
	require.NoError(t, s.Pull(pull))
	assert.ErrorIs(t, recv(t, ch).err, os.ErrNotExist)

	s, err = f.CreateReadStream(t.TempDir(), ReadStreamOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Pull(pull))
	assert.ErrorIs(t, recv(t, ch).err, ErrNotFile)
}

func Test_ReadStream_Busy(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)
	require.NoError(t, os.WriteFile(fp, randBytes(100), 0o644))

	s, err := f.CreateReadStream(fp, ReadStreamOptions{})
	require.NoError(t, err)

	first, firstCh := capture[[]byte]()
	second, secondCh := capture[[]byte]()
	// both land on the loop in this order, the second while the open is in flight
	onLoop(t, f, func() {
		s.pull(first)
		s.pull(second)
	})
	assert.ErrorIs(t, recv(t, secondCh).err, ErrStreamBusy)
	r := recv(t, firstCh)
	require.NoError(t, r.err)
	assert.Len(t, r.val, 100)
	require.NoError(t, s.Close())
}

func Test_ReadStream_Destroy(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)
	require.NoError(t, os.WriteFile(fp, randBytes(0x3000), 0o644))

	// never opened
	s, err := f.CreateReadStream(fp, ReadStreamOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	pull, ch := capture[[]byte]()
	require.NoError(t, s.Pull(pull))
	assert.ErrorIs(t, recv(t, ch).err, ErrStreamDestroyed)

	// mid stream
	s, err = f.CreateReadStream(fp, ReadStreamOptions{ChunkSize: 0x1000})
	require.NoError(t, err)
	require.NoError(t, s.Pull(pull))
	require.NoError(t, recv(t, ch).err)
	var fd int
	onLoop(t, f, func() { fd = s.fd })
	require.GreaterOrEqual(t, fd, 0)
	require.NoError(t, s.Close())
	onLoop(t, f, func() { fd = s.fd })
	assert.Equal(t, -1, fd)

	// while a read is in flight
	s, err = f.CreateReadStream(fp, ReadStreamOptions{})
	require.NoError(t, err)
	destroyed, destroyedCh := errCb()
	onLoop(t, f, func() {
		s.pull(pull)
		s.destroy(destroyed)
	})
	assert.ErrorIs(t, recv(t, ch).err, ErrStreamDestroyed)
	require.NoError(t, recv(t, destroyedCh))

	// destroy twice
	require.NoError(t, s.Close())
}
