package loader

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigNames are the file names searched for, in order of preference.
var ConfigNames = []string{".gitstamp.yaml", ".gitstamp.yml", "gitstamp.yaml"}

// FindConfig walks from start towards the filesystem root and returns the
// first config file found. An empty result with nil error means none exists.
func FindConfig(start string) (string, error) {
	if start == "" {
		start = "."
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat start: %w", err)
	}
	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		for _, name := range ConfigNames {
			candidate := filepath.Join(dir, name)
			if isConfigFile(candidate) {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func isConfigFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
