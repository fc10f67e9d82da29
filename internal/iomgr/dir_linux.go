//go:build linux

package iomgr

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Entry-type tags reported for raw directory entries.
type DirentType uint8

const (
	DirentUnknown DirentType = iota
	DirentFile
	DirentDir
	DirentLink
	DirentFIFO
	DirentSocket
	DirentChar
	DirentBlock
)

func direntType(dt uint8) DirentType {
	switch dt {
	case unix.DT_REG:
		return DirentFile
	case unix.DT_DIR:
		return DirentDir
	case unix.DT_LNK:
		return DirentLink
	case unix.DT_FIFO:
		return DirentFIFO
	case unix.DT_SOCK:
		return DirentSocket
	case unix.DT_CHR:
		return DirentChar
	case unix.DT_BLK:
		return DirentBlock
	}
	return DirentUnknown
}

type RawDirent struct {
	Name []byte
	Type DirentType
}

// Dir is an open directory handle. The scratch buffer belongs to the caller and has
// to be the same slice on every readdir; off/end track the bytes getdents64 returned
// that haven't been handed out yet.
type Dir struct {
	Fd  int
	off int
	end int
}

func NewDir() *Dir {
	return &Dir{Fd: -1}
}

// linux_dirent64
const (
	offReclen = 0x10 // 2B
	offType   = 0x12 // 1B
	offName   = 0x13
)

// Returns the number of entries appended to out; 0 means the directory is exhausted.
func (d *Dir) readBatch(scratch []byte, max int, out *[]RawDirent) (int, error) {
	if d.Fd < 0 {
		return 0, unix.EBADF
	}
	n := 0
	for n < max {
		if d.off >= d.end {
			var got int
			err := ignoringEINTR(func() error {
				var err error
				got, err = unix.Getdents(d.Fd, scratch)
				return err
			})
			if err != nil {
				return n, err
			}
			if got <= 0 {
				break
			}
			d.off, d.end = 0, got
		}

		rec := scratch[d.off:d.end]
		reclen := int(binary.NativeEndian.Uint16(rec[offReclen:]))
		if reclen < offName || reclen > len(rec) {
			return n, unix.EIO
		}
		d.off += reclen

		name := rec[offName:reclen]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		if string(name) == "." || string(name) == ".." {
			continue
		}

		*out = append(*out, RawDirent{
			Name: bytes.Clone(name),
			Type: direntType(rec[offType]),
		})
		n++
	}
	return n, nil
}

func (d *Dir) close() error {
	if d.Fd < 0 {
		return unix.EBADF
	}
	fd := d.Fd
	d.Fd = -1
	d.off, d.end = 0, 0
	return unix.Close(fd)
}
