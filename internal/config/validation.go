package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

// transferAlignment is the granularity the OS requires for data transfers
// that do not end at end-of-file.
const transferAlignment = 4096

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Bridge.ChunkSize%transferAlignment != 0 {
		return fmt.Errorf("bridge.chunk_size: %d is not a multiple of %d", cfg.Bridge.ChunkSize, transferAlignment)
	}

	switch cfg.Source.Type {
	case "local":
		if cfg.Source.Local.Root == "" {
			return errors.New("source.local.root: required for the local source")
		}
	case "s3":
		if cfg.Source.S3.Bucket == "" {
			return errors.New("source.s3.bucket: required for the s3 source")
		}
		if (cfg.Source.S3.AccessKey == "") != (cfg.Source.S3.SecretKey == "") {
			return errors.New("source.s3: access_key and secret_key must be set together")
		}
	}

	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
