package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv merges the given dotenv files into the process environment.
//
// Variables already present in the environment win. Missing files are
// skipped so local development can rely on an optional .env.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load dotenv %s: %w", path, err)
		}
	}
	return nil
}

// ParseEnvWithDotEnv loads dotenv files and then parses the environment.
func ParseEnvWithDotEnv(target any, paths ...string) error {
	if err := LoadDotEnv(paths...); err != nil {
		return err
	}
	return ParseEnv(target)
}
