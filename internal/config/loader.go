package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/varscope/internal/constants"
	"github.com/coral-mesh/varscope/internal/privilege"
	"github.com/coral-mesh/varscope/internal/safe"
)

// Loader reads and writes the config file.
type Loader struct {
	path string
}

// NewLoader resolves the config file location: the VARSCOPE_CONFIG
// environment variable, then ~/.varscope/config.yaml of the invoking user
// (the one behind sudo, if any), then a fallback under the temp directory.
func NewLoader() *Loader {
	if path := os.Getenv(constants.ConfigEnvVar); path != "" {
		return &Loader{path: path}
	}
	home, err := privilege.HomeDir()
	if err != nil {
		home = filepath.Join(os.TempDir(), "varscope-fallback")
	}
	return &Loader{path: filepath.Join(home, constants.DefaultDir, constants.ConfigFile)}
}

// NewLoaderFor returns a loader for an explicit file.
func NewLoaderFor(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the config file location.
func (l *Loader) Path() string { return l.path }

// Load reads the config file over the defaults and applies environment
// overrides. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := safe.ReadFile(l.path, nil)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
		}
	}

	if err := MergeFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to the config file.
func (l *Loader) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := safe.WriteFileAtomic(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return privilege.FixFileOwnership(l.path)
}

// Schema returns the JSON Schema of the config file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "varscope configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
