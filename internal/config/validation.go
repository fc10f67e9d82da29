//go:build linux

package config

import (
	"errors"
	"fmt"

	"mooofs/fs"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if _, err := fs.ParseEncoding(cfg.Streams.Encoding); err != nil {
		return fmt.Errorf("streams.encoding: %w", err)
	}
	// io_uring sizes its queues in powers of two
	if n := cfg.Engine.RingEntries; n&(n-1) != 0 {
		return fmt.Errorf("engine.ring_entries: must be a power of two, got %d", n)
	}
	if cfg.Streams.WriteFlags&(fs.O_WRONLY|fs.O_RDWR) == 0 {
		return fmt.Errorf("streams.write_flags: must open for writing, got %#x", int(cfg.Streams.WriteFlags))
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
