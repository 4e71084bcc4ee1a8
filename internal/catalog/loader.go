package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of the services YAML file.
type File struct {
	Services []Definition `yaml:"services"`
}

// Loader handles loading and parsing of the services YAML file
type Loader struct {
	filePath string
}

// NewLoader creates a new catalog loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the services file into a Catalog.
// Relative dir and command entries resolve against the file's directory.
func (l *Loader) Load() (*Catalog, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse services yaml: %w", err)
	}

	base := filepath.Dir(l.filePath)
	for i := range f.Services {
		f.Services[i].Dir = resolve(base, f.Services[i].Dir)
		if hasDir(f.Services[i].Command) {
			f.Services[i].Command = resolve(base, f.Services[i].Command)
		}
	}

	c, err := New(f.Services...)
	if err != nil {
		return nil, fmt.Errorf("invalid services file %s: %w", l.filePath, err)
	}
	return c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// hasDir reports whether a command is a path rather than a bare name to be
// looked up on PATH.
func hasDir(cmd string) bool {
	return filepath.Base(cmd) != cmd
}
