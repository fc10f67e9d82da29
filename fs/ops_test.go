//go:build linux

package fs

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func Test_Ops_ArgErrors(t *testing.T) {
	f := createFS(t, false)
	noop := func(error) {}

	assert.ErrorIs(t, f.Close(-1, noop), ErrOutOfRange)
	assert.ErrorIs(t, f.Close(0x80000000, noop), ErrOutOfRange)
	assert.ErrorIs(t, f.Close(3, nil), ErrInvalidArgType)
	assert.ErrorIs(t, f.Open("moo\x00cow", O_RDONLY, 0, func(int, error) {}), ErrInvalidArgValue)
	assert.ErrorIs(t, f.Read(3, nil, 0, func(int, error) {}), ErrInvalidArgType)
	assert.ErrorIs(t, f.Read(3, make([]byte, 1), -2, func(int, error) {}), ErrOutOfRange)
	assert.ErrorIs(t, f.Writev(3, make([][]byte, IOV_MAX+1), -1, func(int, error) {}), ErrOutOfRange)
	assert.ErrorIs(t, f.Ftruncate(3, -1, noop), ErrOutOfRange)
	assert.ErrorIs(t, f.Symlink("a", "b", SymlinkType(7), noop), ErrInvalidSymlinkType)
	assert.ErrorIs(t, f.Stat("/", nil), ErrInvalidArgType)
	assert.ErrorIs(t, f.Opendir("/", DirOptions{Encoding: "ebcdic"}, func(*Dir, error) {}), ErrInvalidArgValue)
}

func Test_Ops_FileRoundTrip(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		fp := tempfile(t)

		open, openCh := capture[int]()
		require.NoError(t, f.Open(fp, O_RDWR|O_CREAT, 0o644, open))
		r := recv(t, openCh)
		require.NoError(t, r.err)
		fd := r.val

		write, writeCh := capture[int]()
		require.NoError(t, f.Writev(fd, [][]byte{[]byte("moo"), []byte("\x00cow")}, 0, write))
		w := recv(t, writeCh)
		require.NoError(t, w.err)
		assert.Equal(t, 7, w.val)

		sync, syncCh := errCb()
		require.NoError(t, f.Fsync(fd, sync))
		require.NoError(t, recv(t, syncCh))

		buf := make([]byte, 16)
		read, readCh := capture[int]()
		require.NoError(t, f.Read(fd, buf, 0, read))
		rd := recv(t, readCh)
		require.NoError(t, rd.err)
		assert.Equal(t, "moo\x00cow", string(buf[:rd.val]))

		a, b := make([]byte, 2), make([]byte, 8)
		require.NoError(t, f.Readv(fd, [][]byte{a, b}, 1, read))
		rd = recv(t, readCh)
		require.NoError(t, rd.err)
		assert.Equal(t, 6, rd.val)
		assert.Equal(t, "oo", string(a))
		assert.Equal(t, "\x00cow", string(b[:4]))

		trunc, truncCh := errCb()
		require.NoError(t, f.Ftruncate(fd, 3, trunc))
		require.NoError(t, recv(t, truncCh))

		stat, statCh := capture[*Stats]()
		require.NoError(t, f.Fstat(fd, stat))
		st := recv(t, statCh)
		require.NoError(t, st.err)
		assert.Equal(t, int64(3), st.val.Size)
		assert.True(t, st.val.IsFile())

		chmod, chmodCh := errCb()
		require.NoError(t, f.Fchmod(fd, 0o600, chmod))
		require.NoError(t, recv(t, chmodCh))

		closeFd, closeCh := errCb()
		require.NoError(t, f.Close(fd, closeFd))
		require.NoError(t, recv(t, closeCh))

		// second close of the same fd comes back from the engine
		require.NoError(t, f.Close(fd, closeFd))
		err := recv(t, closeCh)
		var serr *os.SyscallError
		require.ErrorAs(t, err, &serr)
		assert.ErrorIs(t, err, unix.EBADF)

		info, err := os.Stat(fp)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}

func Test_Ops_Stat_NotExist(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		fp := tempfile(t)
		stat, ch := capture[*Stats]()
		require.NoError(t, f.Stat(fp, stat))
		r := recv(t, ch)

		assert.Nil(t, r.val)
		assert.ErrorIs(t, r.err, os.ErrNotExist)
		var perr *os.PathError
		require.ErrorAs(t, r.err, &perr)
		assert.Equal(t, "stat", perr.Op)
		assert.Equal(t, fp, perr.Path)
	})
}

func Test_Ops_Paths(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		root := t.TempDir()
		src := filepath.Join(root, "moo")
		dst := filepath.Join(root, "cow")
		link := filepath.Join(root, "link")
		require.NoError(t, os.WriteFile(src, []byte("moo"), 0o644))

		done, ch := errCb()
		require.NoError(t, f.Rename(src, dst, done))
		require.NoError(t, recv(t, ch))
		assert.NoFileExists(t, src)
		assert.FileExists(t, dst)

		require.NoError(t, f.Symlink("cow", link, SymlinkFile, done))
		require.NoError(t, recv(t, ch))

		require.NoError(t, f.Symlink("cow", link, SymlinkFile, done))
		err := recv(t, ch)
		var lerr *os.LinkError
		require.ErrorAs(t, err, &lerr)
		assert.ErrorIs(t, err, os.ErrExist)

		str, strCh := capture[string]()
		require.NoError(t, f.Readlink(link, str))
		r := recv(t, strCh)
		require.NoError(t, r.err)
		assert.Equal(t, "cow", r.val)

		require.NoError(t, f.Realpath(link, str))
		r = recv(t, strCh)
		require.NoError(t, r.err)
		want, err := filepath.EvalSymlinks(dst)
		require.NoError(t, err)
		assert.Equal(t, want, r.val)

		stat, statCh := capture[*Stats]()
		require.NoError(t, f.Lstat(link, stat))
		st := recv(t, statCh)
		require.NoError(t, st.err)
		assert.True(t, st.val.IsSymbolicLink())

		require.NoError(t, f.Stat(link, stat))
		st = recv(t, statCh)
		require.NoError(t, st.err)
		assert.True(t, st.val.IsFile())
		assert.Equal(t, int64(3), st.val.Size)

		require.NoError(t, f.Chmod(dst, 0o640, done))
		require.NoError(t, recv(t, ch))
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

		require.NoError(t, f.Unlink(link, done))
		require.NoError(t, recv(t, ch))
		require.NoError(t, f.Unlink(dst, done))
		require.NoError(t, recv(t, ch))
		assert.NoFileExists(t, dst)

		sub := filepath.Join(root, "sub")
		require.NoError(t, f.Mkdir(sub, MkdirOptions{Mode: 0o755}, done))
		require.NoError(t, recv(t, ch))
		require.NoError(t, f.Mkdir(sub, MkdirOptions{}, done))
		assert.ErrorIs(t, recv(t, ch), os.ErrExist)
		require.NoError(t, f.Rmdir(sub, done))
		require.NoError(t, recv(t, ch))
		assert.NoDirExists(t, sub)
	})
}

func Test_Ops_Mkdirp(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		root := t.TempDir()
		deep := filepath.Join(root, "a", "b", "c") + "/"

		done, ch := errCb()
		require.NoError(t, f.Mkdir(deep, MkdirOptions{Recursive: true}, done))
		require.NoError(t, recv(t, ch))
		assert.DirExists(t, filepath.Join(root, "a", "b", "c"))

		// already there
		require.NoError(t, f.Mkdir(deep, MkdirOptions{Recursive: true}, done))
		require.NoError(t, recv(t, ch))

		// a file in the way
		fp := filepath.Join(root, "a", "file")
		require.NoError(t, os.WriteFile(fp, nil, 0o644))
		require.NoError(t, f.Mkdir(fp, MkdirOptions{Recursive: true}, done))
		assert.ErrorIs(t, recv(t, ch), os.ErrExist)

		require.NoError(t, f.Mkdir(filepath.Join(fp, "x", "y"), MkdirOptions{Recursive: true}, done))
		assert.ErrorIs(t, recv(t, ch), unix.ENOTDIR)
	})
}

func Test_Ops_Concurrent(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		root := t.TempDir()
		const N = 200

		errs := make(chan error, N)
		for i := range N {
			fp := filepath.Join(root, string(rune('a'+i%26))+string(rune('0'+i/26)))
			require.NoError(t, f.WriteFile(fp, []byte(fp), WriteFileOptions{}, func(err error) {
				errs <- err
			}))
		}
		for range N {
			require.NoError(t, recv(t, errs))
		}

		var slots int
		onLoop(t, f, func() { slots = f.loop.Pool().Len() })
		assert.LessOrEqual(t, slots, N)

		ents, err := f.Promises().Readdir(testCtx(t), root, DirOptions{})
		require.NoError(t, err)
		assert.Len(t, ents, N)
		for _, e := range ents {
			data, err := os.ReadFile(e.FullPath())
			require.NoError(t, err)
			assert.Equal(t, e.FullPath(), string(data))
		}
	})
}

func Test_Ops_CallbackChaining(t *testing.T) {
	f := createFS(t, false)
	fp := tempfile(t)

	// continuations may submit again straight from the loop
	result := make(chan error, 1)
	require.NoError(t, f.Open(fp, O_WRONLY|O_CREAT, 0o644, func(fd int, err error) {
		if err != nil {
			result <- err
			return
		}
		f.write(fd, []byte("moo"), -1, func(_ int, err error) {
			f.closeWith(fd, err, func(err error) { result <- err })
		})
	}))
	require.NoError(t, recv(t, result))

	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "moo", string(data))
}

func Test_Ops_PathBuffers(t *testing.T) {
	engines(t, func(t *testing.T, f *FS) {
		root := t.TempDir()
		target := "m\xffo"
		link := filepath.Join(root, "link")
		require.NoError(t, os.WriteFile(filepath.Join(root, target), nil, 0o644))
		require.NoError(t, os.Symlink(target, link))

		raw, rawCh := capture[[]byte]()
		require.NoError(t, f.ReadlinkBuffer(link, raw))
		r := recv(t, rawCh)
		require.NoError(t, r.err)
		assert.Equal(t, []byte(target), r.val)
		assert.Equal(t, "6dff6f", EncodingHex.Decode(r.val))

		require.NoError(t, f.RealpathBuffer(link, raw))
		r = recv(t, rawCh)
		require.NoError(t, r.err)
		want, err := filepath.EvalSymlinks(link)
		require.NoError(t, err)
		assert.Equal(t, []byte(want), r.val)

		got, err := f.ReadlinkBufferSync(link)
		require.NoError(t, err)
		assert.Equal(t, []byte(target), got)
		got, err = f.RealpathBufferSync(link)
		require.NoError(t, err)
		assert.Equal(t, []byte(want), got)

		_, err = f.Promises().ReadlinkBuffer(testCtx(t), filepath.Join(root, target))
		assert.ErrorIs(t, err, unix.EINVAL)

		assert.ErrorIs(t, f.ReadlinkBuffer(link, nil), ErrInvalidArgType)
		assert.ErrorIs(t, f.Readlink(link, nil), ErrInvalidArgType)
	})
}

func Test_Ops_ReaddirNames(t *testing.T) {
	f := createFS(t, false)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "moo"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "cow"), 0o755))

	names, err := f.Promises().ReaddirNames(testCtx(t), root, DirOptions{})
	require.NoError(t, err)
	slices.Sort(names)
	assert.Equal(t, []string{"cow", "moo"}, names)

	names, err = f.Promises().ReaddirNames(testCtx(t), root, DirOptions{Encoding: EncodingBase64})
	require.NoError(t, err)
	slices.Sort(names)
	assert.Equal(t, []string{"Y293", "bW9v"}, names)

	_, err = f.Promises().ReaddirNames(testCtx(t), filepath.Join(root, "nope"), DirOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
