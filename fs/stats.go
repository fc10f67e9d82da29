//go:build linux

package fs

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Stats is the decoded stat record of a file. Times are available both as
// milliseconds since the epoch and as time.Time.
type Stats struct {
	Dev     uint64
	Mode    uint32
	Nlink   uint64
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	Blksize uint64
	Ino     uint64
	Size    int64
	Blocks  uint64

	AtimeMs     int64
	MtimeMs     int64
	CtimeMs     int64
	BirthtimeMs int64

	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Birthtime time.Time
}

func toMs(ts unix.StatxTimestamp) int64 {
	return ts.Sec*1000 + int64(ts.Nsec)/int64(time.Millisecond)
}

func statsFromStatx(sx *unix.Statx_t) *Stats {
	st := &Stats{
		Dev:     unix.Mkdev(sx.Dev_major, sx.Dev_minor),
		Mode:    uint32(sx.Mode),
		Nlink:   uint64(sx.Nlink),
		Uid:     sx.Uid,
		Gid:     sx.Gid,
		Rdev:    unix.Mkdev(sx.Rdev_major, sx.Rdev_minor),
		Blksize: uint64(sx.Blksize),
		Ino:     sx.Ino,
		Size:    int64(sx.Size),
		Blocks:  sx.Blocks,

		AtimeMs: toMs(sx.Atime),
		MtimeMs: toMs(sx.Mtime),
		CtimeMs: toMs(sx.Ctime),
	}
	// filesystems without birth time leave the bit out of the mask
	if sx.Mask&unix.STATX_BTIME != 0 {
		st.BirthtimeMs = toMs(sx.Btime)
	}

	st.Atime = time.UnixMilli(st.AtimeMs)
	st.Mtime = time.UnixMilli(st.MtimeMs)
	st.Ctime = time.UnixMilli(st.CtimeMs)
	st.Birthtime = time.UnixMilli(st.BirthtimeMs)
	return st
}

func (s *Stats) kind() uint32 { return s.Mode & unix.S_IFMT }

func (s *Stats) IsDirectory() bool       { return s.kind() == unix.S_IFDIR }
func (s *Stats) IsFile() bool            { return s.kind() == unix.S_IFREG }
func (s *Stats) IsBlockDevice() bool     { return s.kind() == unix.S_IFBLK }
func (s *Stats) IsCharacterDevice() bool { return s.kind() == unix.S_IFCHR }
func (s *Stats) IsFIFO() bool            { return s.kind() == unix.S_IFIFO }
func (s *Stats) IsSymbolicLink() bool    { return s.kind() == unix.S_IFLNK }
func (s *Stats) IsSocket() bool          { return s.kind() == unix.S_IFSOCK }

// FileMode converts Mode into the os package's representation.
func (s *Stats) FileMode() os.FileMode {
	m := os.FileMode(s.Mode & 0o777)
	switch s.kind() {
	case unix.S_IFDIR:
		m |= os.ModeDir
	case unix.S_IFLNK:
		m |= os.ModeSymlink
	case unix.S_IFIFO:
		m |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		m |= os.ModeSocket
	case unix.S_IFBLK:
		m |= os.ModeDevice
	case unix.S_IFCHR:
		m |= os.ModeDevice | os.ModeCharDevice
	}
	if s.Mode&unix.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if s.Mode&unix.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if s.Mode&unix.S_ISVTX != 0 {
		m |= os.ModeSticky
	}
	return m
}
