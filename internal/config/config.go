// Package config loads and watches the service definition file. Services
// are declared as a YAML mapping; declaration order is preserved because it
// drives the start order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/lordbuffcloud/srv"
)

const (
	// LocalName is the per-directory config looked up before the user one
	LocalName = "srv.yaml"
	// UserName is the config file name under the user config directory
	UserName = "services.yaml"
	// stateName is the reattachment snapshot kept next to the config
	stateName = ".srv-state.json"
)

// File is a parsed config: the specs in declared order plus where they
// came from.
type File struct {
	Path  string
	Specs []srv.ServiceSpec
}

// rawService mirrors one service block. Delay is in seconds, fractions
// allowed.
type rawService struct {
	Command   string            `yaml:"command"`
	Directory string            `yaml:"directory"`
	Delay     float64           `yaml:"delay"`
	Venv      string            `yaml:"venv"`
	Env       map[string]string `yaml:"env_vars"`
	LogDir    string            `yaml:"logs_dir"`
}

// Load reads and parses the config at path. Per-service problems (bad
// block, duplicate name, failed validation) are returned as warnings so
// one broken definition does not take down the rest; err is non-nil only
// when the file itself cannot be read or parsed.
func Load(path string) (*File, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, warns, err := Parse(data)
	if err != nil {
		return nil, warns, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.Path = path
	return f, warns, nil
}

// Parse decodes config data, preserving service declaration order
func Parse(data []byte) (*File, []error, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &File{}, nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("top level must be a mapping")
	}

	var services *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "services" {
			services = root.Content[i+1]
			break
		}
	}
	if services == nil || services.Kind != yaml.MappingNode {
		return &File{}, nil, nil
	}

	f := &File{}
	var warns []error
	seen := make(map[string]bool)
	for i := 0; i+1 < len(services.Content); i += 2 {
		name := services.Content[i].Value
		if seen[name] {
			warns = append(warns, &srv.ConfigError{Service: name, Reason: "duplicate definition ignored"})
			continue
		}

		var raw rawService
		if err := services.Content[i+1].Decode(&raw); err != nil {
			warns = append(warns, &srv.ConfigError{Service: name, Reason: "decoding service block", Err: err})
			continue
		}

		spec := srv.ServiceSpec{
			Name:      name,
			Command:   raw.Command,
			Directory: raw.Directory,
			Delay:     time.Duration(raw.Delay * float64(time.Second)),
			Venv:      raw.Venv,
			Env:       raw.Env,
			LogDir:    raw.LogDir,
		}
		if err := spec.Validate(); err != nil {
			warns = append(warns, err)
			continue
		}

		seen[name] = true
		f.Specs = append(f.Specs, spec)
	}
	return f, warns, nil
}

// DefaultPath returns the config file to use: srv.yaml in the working
// directory when present, otherwise the per-user location (which need not
// exist yet).
func DefaultPath() string {
	if _, err := os.Stat(LocalName); err == nil {
		return LocalName
	}
	return UserPath()
}

// UserPath returns the per-user config location under the OS config
// directory, with a home-directory fallback
func UserPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return LocalName
		}
		return filepath.Join(home, ".srv", UserName)
	}
	return filepath.Join(base, "srv", UserName)
}

// StatePath returns where the process snapshot for the given config lives
func StatePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), stateName)
}

// defaultConfig seeds a first run with a commented example
const defaultConfig = `# Service definitions. Services start in the order they appear here.
#
# Each service supports:
#   command    (required) command line to run
#   directory  working directory
#   delay      seconds to wait before starting, fractions allowed
#   venv       Python virtual environment to activate
#   env_vars   extra environment variables
#   logs_dir   directory for the service's log file
services:
  example:
    command: python script.py
    directory: ~/projects/example
    delay: 0
    venv: ~/venvs/example
    logs_dir: ~/logs
`

// WriteDefault creates a starter config at path, refusing to overwrite an
// existing file
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(defaultConfig), 0o644)
}
