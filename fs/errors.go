//go:build linux

package fs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	c "mooofs/internal"
	"mooofs/internal/iomgr"
)

var (
	ErrInvalidArgType     = errors.New("fs: invalid argument type")
	ErrInvalidArgValue    = errors.New("fs: invalid argument value")
	ErrOutOfRange         = errors.New("fs: argument out of range")
	ErrInvalidSymlinkType = errors.New("fs: invalid symlink type")
	ErrClosed             = errors.New("fs: closed")
	ErrNotFile            = errors.New("fs: not a file")
	ErrStreamBusy         = errors.New("fs: stream busy")
	ErrStreamDestroyed    = errors.New("fs: stream destroyed")
	ErrWriteAfterEnd      = errors.New("fs: write after end")
	ErrDirClosed          = errors.New("fs: directory closed")
)

var errNoCallback = fmt.Errorf("%w: callback must be a function", ErrInvalidArgType)

func checkFd(fd int) error {
	if fd < 0 || fd > c.FD_MAX {
		return fmt.Errorf("%w: file descriptor must be >= 0 && <= %d, got %d",
			ErrOutOfRange, c.FD_MAX, fd)
	}
	return nil
}

func checkPath(path string) error {
	if strings.IndexByte(path, 0) >= 0 {
		return fmt.Errorf("%w: path must not contain null bytes: %q", ErrInvalidArgValue, path)
	}
	return nil
}

func checkBuf(buf []byte) error {
	if buf == nil {
		return fmt.Errorf("%w: buffer must not be nil", ErrInvalidArgType)
	}
	return nil
}

func pathErr(code iomgr.OpCode, path string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: code.String(), Path: path, Err: err}
}

func fdErr(code iomgr.OpCode, err error) error {
	return os.NewSyscallError(code.String(), err)
}
