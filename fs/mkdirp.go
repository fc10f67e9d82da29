//go:build linux

package fs

import (
	"errors"
	"os"
	"strings"

	"mooofs/internal/iomgr"

	"golang.org/x/sys/unix"
)

const sep = string(os.PathSeparator)

// parentOf strips trailing separators and the last component. ok is false when
// there is nothing left to create.
func parentOf(path string) (trimmed, parent string, ok bool) {
	trimmed = path
	for len(trimmed) > 1 && strings.HasSuffix(trimmed, sep) {
		trimmed = trimmed[:len(trimmed)-1]
	}
	i := strings.LastIndex(trimmed, sep)
	if i <= 0 {
		return trimmed, "", false
	}
	return trimmed, trimmed[:i], true
}

// mkdirp creates path and any missing parents. An existing directory counts as
// success, an existing non-directory reports the original mkdir error.
func (f *FS) mkdirp(path string, mode uint32, cb func(error)) {
	f.mkdir(path, mode, func(err error) {
		if err == nil {
			cb(nil)
			return
		}

		if !errors.Is(err, unix.ENOENT) {
			f.stat(iomgr.OpStat, path, func(st *Stats, serr error) {
				switch {
				case serr != nil:
					cb(serr)
				case st.IsDirectory():
					cb(nil)
				default:
					cb(err)
				}
			})
			return
		}

		trimmed, parent, ok := parentOf(path)
		if !ok {
			cb(err)
			return
		}
		f.mkdirp(parent, mode, func(perr error) {
			if perr != nil {
				cb(perr)
				return
			}
			f.mkdir(trimmed, mode, cb)
		})
	})
}
