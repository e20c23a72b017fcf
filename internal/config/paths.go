package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".voyago"

// Paths holds resolved filesystem paths for Voyago data.
type Paths struct {
	Base   string // ~/.voyago
	Config string // ~/.voyago/config.yaml
	Data   string // ~/.voyago/data (SQLite database lives here)
}

// ResolvePaths computes the standard paths from the home directory.
// VOYAGO_HOME overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("VOYAGO_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates the standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
