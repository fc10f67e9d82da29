//go:build linux

package iomgr

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func Test_Dir_ReadBatch(t *testing.T) {
	root := t.TempDir()
	const FILES = 40
	for i := range FILES {
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("f%02d", i)), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	dir := NewDir()
	_, err := Perform(&Op{Opcode: OpOpendir, Path: root, Dir: dir})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dir.Fd, 0)

	// deliberately small so entries get carried between batches
	scratch, err := AllocSlab(0x1000)
	require.NoError(t, err)
	defer DeallocSlab(scratch)

	types := map[string]DirentType{}
	for {
		var batch []RawDirent
		n, err := Perform(&Op{Opcode: OpReaddir, Dir: dir, Buf: scratch, MaxEntries: 7, Batch: &batch})
		require.NoError(t, err)
		assert.Equal(t, n, len(batch))
		assert.LessOrEqual(t, n, 7)
		if n == 0 {
			break
		}
		for _, e := range batch {
			_, dup := types[string(e.Name)]
			assert.False(t, dup, "entry %s emitted twice", e.Name)
			types[string(e.Name)] = e.Type
		}
	}

	assert.Len(t, types, FILES+1)
	assert.NotContains(t, types, ".")
	assert.NotContains(t, types, "..")
	if types["sub"] != DirentUnknown {
		assert.Equal(t, DirentDir, types["sub"])
		assert.Equal(t, DirentFile, types["f00"])
	}

	_, err = Perform(&Op{Opcode: OpClosedir, Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, -1, dir.Fd)

	_, err = Perform(&Op{Opcode: OpClosedir, Dir: dir})
	assert.Equal(t, unix.EBADF, err)
}

func Test_Dir_Opendir_NotDir(t *testing.T) {
	fp := tempfile(t)
	require.NoError(t, os.WriteFile(fp, nil, 0o644))

	dir := NewDir()
	_, err := Perform(&Op{Opcode: OpOpendir, Path: fp, Dir: dir})
	assert.Equal(t, unix.ENOTDIR, err)
	assert.Equal(t, -1, dir.Fd)
}
