package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable gitstamp reads.
const EnvPrefix = "GITSTAMP_"

// parseEnv populates a Config from GITSTAMP_* variables. A nil environ reads
// the process environment.
func parseEnv(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Environ returns the process environment as a map, layered over the
// variables found in the given dotenv files. Missing files are skipped and
// the process environment always wins.
func Environ(dotenv ...string) (map[string]string, error) {
	out := map[string]string{}
	for _, file := range dotenv {
		values, err := godotenv.Read(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for key, value := range values {
			out[key] = value
		}
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			out[key] = value
		}
	}
	return out, nil
}
