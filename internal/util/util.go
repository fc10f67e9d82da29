package util

import (
	"fmt"
	"io"
)

// Hexdump writes data as offset-prefixed rows of cols groups of group bytes,
// followed by a printable-ASCII gutter.
func Hexdump(w io.Writer, data []byte, base int64, group int, cols int) {
	if group < 1 {
		group = 1
	}
	if cols < 1 {
		cols = 1
	}
	row := group * cols

	for off := 0; off < len(data); off += row {
		end := min(off+row, len(data))
		fmt.Fprintf(w, "%08x: ", base+int64(off))

		for i := off; i < off+row; i++ {
			if i < end {
				fmt.Fprintf(w, "%02x", data[i])
			} else {
				fmt.Fprint(w, "  ")
			}
			// space between byte groups
			if (i-off+1)%group == 0 {
				fmt.Fprint(w, " ")
			}
		}

		fmt.Fprint(w, " ")
		for _, b := range data[off:end] {
			if b < 0x20 || b > 0x7e {
				b = '.'
			}
			fmt.Fprintf(w, "%c", b)
		}
		fmt.Fprintln(w)
	}
}
