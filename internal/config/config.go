//go:build linux

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"mooofs/fs"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "MOOOFS"

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Streams StreamsConfig `mapstructure:"streams"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	NoColor bool   `mapstructure:"no_color"`
}

type EngineConfig struct {
	RingEntries uint32 `mapstructure:"ring_entries" validate:"required,gte=1,lte=32768"`
	Workers     int    `mapstructure:"workers" validate:"required,gte=1,lte=1024"`
	DisableRing bool   `mapstructure:"disable_ring"`
	// -1 leaves the ring goroutine unpinned
	RingCPU int `mapstructure:"ring_cpu" validate:"gte=-1"`
}

type StreamsConfig struct {
	ChunkSize  int       `mapstructure:"chunk_size" validate:"required,gte=1,lte=67108864"`
	DirBatch   int       `mapstructure:"dir_batch" validate:"required,gte=1,lte=4096"`
	Encoding   string    `mapstructure:"encoding"`
	FileMode   FileMode  `mapstructure:"file_mode" validate:"lte=4095"`
	DirMode    FileMode  `mapstructure:"dir_mode" validate:"lte=4095"`
	WriteFlags OpenFlags `mapstructure:"write_flags"`
}

// FileMode decodes from octal strings ("0644") as well as plain numbers.
type FileMode uint32

// OpenFlags decodes from flag strings ("w", "a+") as well as raw open(2) bits.
type OpenFlags int

// Load reads path (or config.yaml from the config dir when path is empty), applies
// MOOOFS_* environment overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := decode(v.AllSettings(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AllSettings only reports keys viper knows about, so every key gets a default
	// for env overrides to land on
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.no_color", d.Logging.NoColor)
	v.SetDefault("engine.ring_entries", d.Engine.RingEntries)
	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.disable_ring", d.Engine.DisableRing)
	v.SetDefault("engine.ring_cpu", d.Engine.RingCPU)
	v.SetDefault("streams.chunk_size", d.Streams.ChunkSize)
	v.SetDefault("streams.dir_batch", d.Streams.DirBatch)
	v.SetDefault("streams.encoding", d.Streams.Encoding)
	v.SetDefault("streams.file_mode", uint32(d.Streams.FileMode))
	v.SetDefault("streams.dir_mode", uint32(d.Streams.DirMode))
	v.SetDefault("streams.write_flags", int(d.Streams.WriteFlags))

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper, path string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mooofs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mooofs")
}

func decode(input map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			fileModeHook,
			openFlagsHook,
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

var (
	fileModeType  = reflect.TypeOf(FileMode(0))
	openFlagsType = reflect.TypeOf(OpenFlags(0))
)

func fileModeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != fileModeType || from.Kind() != reflect.String {
		return data, nil
	}
	m, err := fs.ParseMode(data.(string))
	if err != nil {
		return nil, err
	}
	return FileMode(m), nil
}

func openFlagsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != openFlagsType || from.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	// env overrides arrive as strings even when they hold raw bits
	if _, err := strconv.Atoi(s); err == nil {
		return data, nil
	}
	f, err := fs.ParseFlags(s)
	if err != nil {
		return nil, err
	}
	return OpenFlags(f), nil
}

func (c *LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// FSOptions converts the engine and stream sections into fs.Options.
func (c *Config) FSOptions(log *slog.Logger) fs.Options {
	return fs.Options{
		Logger:      log,
		RingEntries: c.Engine.RingEntries,
		Workers:     c.Engine.Workers,
		DisableRing: c.Engine.DisableRing,
		PinRing:     c.Engine.RingCPU >= 0,
		RingCPU:     c.Engine.RingCPU,
		ChunkSize:   c.Streams.ChunkSize,
		DirBatch:    c.Streams.DirBatch,
	}
}

func (c *Config) DirOptions() fs.DirOptions {
	return fs.DirOptions{Encoding: fs.Encoding(c.Streams.Encoding), BufferSize: c.Streams.DirBatch}
}

func (c *Config) WriteStreamOptions() fs.WriteStreamOptions {
	return fs.WriteStreamOptions{Flags: int(c.Streams.WriteFlags), Mode: uint32(c.Streams.FileMode)}
}

func (c *Config) MkdirOptions() fs.MkdirOptions {
	return fs.MkdirOptions{Mode: uint32(c.Streams.DirMode), Recursive: true}
}
