//go:build linux

package config

import (
	"strings"

	"mooofs/fs"
	c "mooofs/internal"
	"mooofs/internal/iomgr"
)

func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Engine: EngineConfig{
			RingEntries: iomgr.RING_ENTRIES,
			Workers:     iomgr.WORKERS,
			RingCPU:     -1,
		},
		Streams: StreamsConfig{
			ChunkSize:  c.CHUNK_SIZE,
			DirBatch:   c.DIR_BATCH,
			Encoding:   string(fs.EncodingUTF8),
			FileMode:   c.DEFAULT_FILE_MODE,
			DirMode:    c.DEFAULT_DIR_MODE,
			WriteFlags: fs.O_TRUNC | fs.O_CREAT | fs.O_WRONLY,
		},
	}
}

// ApplyDefaults fills zero values. Explicit values are kept, the log level is
// normalized to upper case.
func ApplyDefaults(cfg *Config) {
	d := Default()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Engine.RingEntries == 0 {
		cfg.Engine.RingEntries = d.Engine.RingEntries
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = d.Engine.Workers
	}

	if cfg.Streams.ChunkSize == 0 {
		cfg.Streams.ChunkSize = d.Streams.ChunkSize
	}
	if cfg.Streams.DirBatch == 0 {
		cfg.Streams.DirBatch = d.Streams.DirBatch
	}
	if cfg.Streams.Encoding == "" {
		cfg.Streams.Encoding = d.Streams.Encoding
	}
	if cfg.Streams.FileMode == 0 {
		cfg.Streams.FileMode = d.Streams.FileMode
	}
	if cfg.Streams.DirMode == 0 {
		cfg.Streams.DirMode = d.Streams.DirMode
	}
	if cfg.Streams.WriteFlags == 0 {
		cfg.Streams.WriteFlags = d.Streams.WriteFlags
	}
}
