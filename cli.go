//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mooofs/fs"
	"mooofs/internal/config"
	"mooofs/internal/util"

	"github.com/cespare/xxhash"
	"github.com/dustin/go-humanize"
)

type cli struct {
	ctx context.Context
	cfg *config.Config
	f   *fs.FS
	p   *fs.Promises
	out io.Writer
	log *slog.Logger
}

func (c *cli) dispatch(name string, args []string) error {
	c.log.Debug("dispatch", "cmd", name, "args", args)
	switch name {
	case "cat":
		return c.each(args, c.cat)
	case "cp":
		if len(args) != 2 {
			return errUsage
		}
		return c.cp(args[0], args[1])
	case "ls":
		return c.ls(args)
	case "mkdirp":
		return c.each(args, func(dir string) error { return c.p.Mkdir(c.ctx, dir, c.cfg.MkdirOptions()) })
	case "stat":
		return c.each(args, c.stat)
	case "sum":
		return c.each(args, c.sum)
	case "xxd":
		if len(args) != 1 {
			return errUsage
		}
		return c.xxd(args[0])
	case "rm":
		return c.each(args, c.rm)
	case "mv":
		if len(args) != 2 {
			return errUsage
		}
		return c.p.Rename(c.ctx, args[0], args[1])
	case "ln":
		if len(args) != 3 || args[0] != "-s" {
			return errUsage
		}
		return c.p.Symlink(c.ctx, args[1], args[2], fs.SymlinkFile)
	}
	return errUsage
}

func (c *cli) each(args []string, fn func(string) error) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, a := range args {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) cat(path string) error {
	rs, err := c.f.CreateReadStream(path, fs.ReadStreamOptions{})
	if err != nil {
		return err
	}
	defer rs.Close()
	_, err = io.Copy(c.out, rs)
	return err
}

func (c *cli) cp(src, dst string) error {
	rs, err := c.f.CreateReadStream(src, fs.ReadStreamOptions{})
	if err != nil {
		return err
	}
	defer rs.Close()

	ws, err := c.f.CreateWriteStream(dst, c.cfg.WriteStreamOptions())
	if err != nil {
		return err
	}
	n, err := io.Copy(ws, rs)
	if err != nil {
		ws.Destroy(func(error) {})
		return err
	}
	if err := ws.Close(); err != nil {
		return err
	}
	c.log.Debug("cp", "src", src, "dst", dst, "bytes", n)
	return nil
}

func (c *cli) ls(args []string) error {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	long := flags.Bool("l", false, "long listing")
	if err := flags.Parse(args); err != nil || flags.NArg() != 1 {
		return errUsage
	}
	dir := flags.Arg(0)

	d, err := c.p.Opendir(c.ctx, dir, c.cfg.DirOptions())
	if err != nil {
		return err
	}
	defer d.CloseWait()

	for ent, err := range d.All() {
		if err != nil {
			return err
		}
		if !*long {
			fmt.Fprintln(c.out, ent.Name)
			continue
		}

		st, err := c.p.Lstat(c.ctx, ent.FullPath())
		if err != nil {
			return err
		}
		name := ent.Name
		if st.IsSymbolicLink() {
			if target, err := c.p.Readlink(c.ctx, ent.FullPath()); err == nil {
				name += " -> " + target
			}
		}
		fmt.Fprintf(c.out, "%s %3d %5d %5d %9s %s %s\n",
			st.FileMode(), st.Nlink, st.Uid, st.Gid,
			humanize.IBytes(uint64(st.Size)), st.Mtime.Format(time.DateTime), name)
	}
	return nil
}

func (c *cli) stat(path string) error {
	st, err := c.p.Lstat(c.ctx, path)
	if err != nil {
		return err
	}
	kind := "regular file"
	switch {
	case st.IsDirectory():
		kind = "directory"
	case st.IsSymbolicLink():
		kind = "symbolic link"
	case st.IsFIFO():
		kind = "fifo"
	case st.IsSocket():
		kind = "socket"
	case st.IsCharacterDevice():
		kind = "character special file"
	case st.IsBlockDevice():
		kind = "block special file"
	}

	fmt.Fprintf(c.out, "  File: %s\n", path)
	fmt.Fprintf(c.out, "  Size: %d (%s)\tBlocks: %d\tIO Block: %d\t%s\n",
		st.Size, humanize.IBytes(uint64(st.Size)), st.Blocks, st.Blksize, kind)
	fmt.Fprintf(c.out, "Device: %d\tInode: %d\tLinks: %d\n", st.Dev, st.Ino, st.Nlink)
	fmt.Fprintf(c.out, "Access: (%04o/%s)\tUid: %d\tGid: %d\n", st.Mode&0o7777, st.FileMode(), st.Uid, st.Gid)
	for _, t := range []struct {
		name string
		at   time.Time
	}{{"Access", st.Atime}, {"Modify", st.Mtime}, {"Change", st.Ctime}, {" Birth", st.Birthtime}} {
		fmt.Fprintf(c.out, "%s: %s (%s)\n", t.name, t.at.Format(time.RFC3339Nano), humanize.Time(t.at))
	}
	return nil
}

func (c *cli) sum(path string) error {
	rs, err := c.f.CreateReadStream(path, fs.ReadStreamOptions{})
	if err != nil {
		return err
	}
	defer rs.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, rs); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%016x  %s\n", h.Sum64(), path)
	return nil
}

func (c *cli) xxd(path string) error {
	rs, err := c.f.CreateReadStream(path, fs.ReadStreamOptions{Length: int64(c.cfg.Streams.ChunkSize)})
	if err != nil {
		return err
	}
	defer rs.Close()

	data, err := io.ReadAll(rs)
	if err != nil {
		return err
	}
	util.Hexdump(c.out, data, 0, 2, 8)
	return nil
}

func (c *cli) rm(path string) error {
	st, err := c.p.Lstat(c.ctx, path)
	if err != nil {
		return err
	}
	if st.IsDirectory() {
		return c.p.Rmdir(c.ctx, path)
	}
	return c.p.Unlink(c.ctx, path)
}
