package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the llmshape home directory.
	DefaultDirName = ".llmshape"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// HistoryFileName is the sqlite call history database.
	HistoryFileName = "history.db"

	// SchemasDirName holds user JSON Schema files referenced by name.
	SchemasDirName = "schemas"
)

// Dir represents the llmshape home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.llmshape).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// HistoryPath returns the call history database path.
// A non-empty override (history.path from config) wins.
func (d *Dir) HistoryPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(d.path, HistoryFileName)
}

// SchemasPath returns the directory for named schema files.
func (d *Dir) SchemasPath() string {
	return filepath.Join(d.path, SchemasDirName)
}

// SchemaPath resolves a schema reference. Values containing a path separator
// or ending in .json are returned unchanged; bare names resolve to
// {home}/schemas/{name}.json.
func (d *Dir) SchemaPath(ref string) string {
	if filepath.Ext(ref) == ".json" || filepath.Base(ref) != ref {
		return ref
	}
	return filepath.Join(d.SchemasPath(), ref+".json")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Creating schemas also creates the parent
	if err := os.MkdirAll(d.SchemasPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create schemas directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
