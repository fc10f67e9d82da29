//go:build linux

package fs

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	O_RDONLY = unix.O_RDONLY
	O_WRONLY = unix.O_WRONLY
	O_RDWR   = unix.O_RDWR
	O_CREAT  = unix.O_CREAT
	O_EXCL   = unix.O_EXCL
	O_TRUNC  = unix.O_TRUNC
	O_APPEND = unix.O_APPEND
	O_SYNC   = unix.O_SYNC
)

var flagTable = map[string]int{
	"r":   O_RDONLY,
	"rs":  O_RDONLY | O_SYNC,
	"sr":  O_RDONLY | O_SYNC,
	"r+":  O_RDWR,
	"rs+": O_RDWR | O_SYNC,
	"sr+": O_RDWR | O_SYNC,

	"w":  O_TRUNC | O_CREAT | O_WRONLY,
	"wx": O_TRUNC | O_CREAT | O_WRONLY | O_EXCL,
	"xw": O_TRUNC | O_CREAT | O_WRONLY | O_EXCL,

	"w+":  O_TRUNC | O_CREAT | O_RDWR,
	"wx+": O_TRUNC | O_CREAT | O_RDWR | O_EXCL,
	"xw+": O_TRUNC | O_CREAT | O_RDWR | O_EXCL,

	"a":  O_APPEND | O_CREAT | O_WRONLY,
	"ax": O_APPEND | O_CREAT | O_WRONLY | O_EXCL,
	"xa": O_APPEND | O_CREAT | O_WRONLY | O_EXCL,
	"as": O_APPEND | O_CREAT | O_WRONLY | O_SYNC,
	"sa": O_APPEND | O_CREAT | O_WRONLY | O_SYNC,

	"a+":  O_APPEND | O_CREAT | O_RDWR,
	"ax+": O_APPEND | O_CREAT | O_RDWR | O_EXCL,
	"xa+": O_APPEND | O_CREAT | O_RDWR | O_EXCL,
	"as+": O_APPEND | O_CREAT | O_RDWR | O_SYNC,
	"sa+": O_APPEND | O_CREAT | O_RDWR | O_SYNC,
}

// ParseFlags maps an open flag string ("r", "w+", "ax", ...) to open(2) bits.
func ParseFlags(flags string) (int, error) {
	if f, ok := flagTable[flags]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: invalid value in flags: %q", ErrInvalidArgValue, flags)
}

// ParseMode parses an octal mode string such as "0644", "755" or "0o600".
func ParseMode(mode string) (uint32, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(mode, "0o"), "0O")
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || s == "" {
		return 0, fmt.Errorf("%w: mode must be a number or octal string: %q", ErrInvalidArgValue, mode)
	}
	return uint32(m), nil
}

type SymlinkType int

const (
	SymlinkFile SymlinkType = iota
	SymlinkDir
	SymlinkJunction
)

// ParseSymlinkType accepts "file", "dir" and "junction". Only Windows
// distinguishes them, everywhere else the type is validated and ignored.
func ParseSymlinkType(typ string) (SymlinkType, error) {
	switch typ {
	case "", "file":
		return SymlinkFile, nil
	case "dir":
		return SymlinkDir, nil
	case "junction":
		return SymlinkJunction, nil
	}
	return 0, fmt.Errorf(`%w: must be one of "dir", "file", or "junction", got %q`,
		ErrInvalidSymlinkType, typ)
}

func (t SymlinkType) valid() bool {
	return t >= SymlinkFile && t <= SymlinkJunction
}
