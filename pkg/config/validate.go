package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for invalid or inconsistent values.
//
// Struct tags cover per-field constraints; cross-field rules that tags
// cannot express (multiplier ordering) are checked explicitly.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	p := cfg.Processing
	if p.MinMultiplier > p.MaxMultiplier {
		return fmt.Errorf("processing: min_multiplier %.3f exceeds max_multiplier %.3f",
			p.MinMultiplier, p.MaxMultiplier)
	}
	if p.DefaultMultiplier < p.MinMultiplier || p.DefaultMultiplier > p.MaxMultiplier {
		return fmt.Errorf("processing: default_multiplier %.3f outside [%.3f, %.3f]",
			p.DefaultMultiplier, p.MinMultiplier, p.MaxMultiplier)
	}

	if cfg.Storage.UploadDir == cfg.Storage.OutputDir {
		return fmt.Errorf("storage: upload_dir and output_dir must differ")
	}

	return nil
}
