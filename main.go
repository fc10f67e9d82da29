//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mooofs/fs"
	"mooofs/internal/config"

	"github.com/lmittmann/tint"
)

const usage = `usage: mooofs [-config FILE] [-v] <command> [args]

commands:
  cat FILE...          print files
  cp SRC DST           copy a file
  ls [-l] DIR          list a directory
  mkdirp DIR...        create directories and their parents
  stat PATH...         print file status
  sum FILE...          xxhash64 of each file
  xxd FILE             hex dump of the first chunk
  rm PATH...           remove files and empty directories
  mv SRC DST           rename
  ln -s TARGET PATH    create a symbolic link
`

var errUsage = errors.New("bad usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("mooofs", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := flags.String("config", "", "config file (default $XDG_CONFIG_HOME/mooofs/config.yaml)")
	verbose := flags.Bool("v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "mooofs:", err)
		return 1
	}
	level := cfg.Logging.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    cfg.Logging.NoColor,
	}))
	slog.SetDefault(log)

	f, err := fs.New(cfg.FSOptions(log))
	if err != nil {
		log.Error("fs.New", "err", err)
		return 1
	}
	defer f.Shutdown()

	cmd := &cli{ctx: ctx, cfg: cfg, f: f, p: f.Promises(), out: stdout, log: log.With("src", "cli")}
	if err := cmd.dispatch(flags.Arg(0), flags.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		fmt.Fprintln(stderr, "mooofs:", err)
		return 1
	}
	return 0
}
