//go:build linux

package iomgr

import (
	"fmt"
	"strings"
)

func (op *Op) String() string {
	if op == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Op | Id: %d, Opcode: %v, Fd: %d, Off: %d", op.Id, op.Opcode, op.Fd, op.Off)

	switch op.Opcode {
	case OpOpen, OpStat, OpLstat, OpChmod, OpMkdir, OpRmdir, OpUnlink,
		OpRealpath, OpReadlink, OpOpendir:
		fmt.Fprintf(&b, " | Path: %q", op.Path)
	case OpRename, OpSymlink:
		fmt.Fprintf(&b, " | Path: %q -> %q", op.Path, op.Path2)
	case OpRead, OpWrite:
		fmt.Fprintf(&b, " | Len: 0x%08x", len(op.Buf))
	case OpReadv, OpWritev:
		for i, buf := range op.Bufs {
			fmt.Fprintf(&b, "\n   | [%02d] Len: 0x%08x", i, len(buf))
		}
	case OpReaddir:
		fmt.Fprintf(&b, " | Max: %d", op.MaxEntries)
	}

	return b.String()
}
