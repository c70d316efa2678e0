package srv

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Invocation is the concrete launch plan produced by Resolve: the
// executable, its arguments, the working directory, and the full child
// environment.
type Invocation struct {
	// Path is the executable to launch. When the command's first token
	// could be resolved against the (venv-aware) search path this is
	// absolute; otherwise it is the token as written and the spawn will
	// surface the lookup failure.
	Path string
	// Args are the arguments, not including Path
	Args []string
	// Dir is the working directory; empty means inherit
	Dir string
	// Env is the complete child environment
	Env []string
}

// Resolve turns a ServiceSpec into an Invocation. It has no side effects
// beyond filesystem existence checks: a missing working directory fails
// with *ConfigError, a missing virtual-environment bin directory with
// *EnvironmentError. A nonexistent executable does NOT fail here; that is
// reported as a *LaunchError when the spawn is attempted.
func Resolve(spec ServiceSpec) (*Invocation, error) {
	words, err := shellwords.Parse(spec.Command)
	if err != nil {
		return nil, &ConfigError{Service: spec.Name, Reason: "parsing command", Err: err}
	}
	if len(words) == 0 {
		return nil, &ConfigError{Service: spec.Name, Reason: "command is empty"}
	}

	var dir string
	if spec.Directory != "" {
		dir = ExpandHome(spec.Directory)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, &ConfigError{Service: spec.Name, Reason: "directory " + dir + " does not exist", Err: err}
		}
	}

	env := os.Environ()
	if spec.Venv != "" {
		venv := ExpandHome(spec.Venv)
		bin := filepath.Join(venv, VenvBinDir)
		info, err := os.Stat(bin)
		if err != nil || !info.IsDir() {
			return nil, &EnvironmentError{Service: spec.Name, Path: bin}
		}
		env = setEnv(env, "PATH", bin+string(os.PathListSeparator)+getEnv(env, "PATH"))
		env = setEnv(env, VenvMarkerVar, venv)
	}
	// Sorted for a deterministic environment layout
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = setEnv(env, k, spec.Env[k])
	}

	return &Invocation{
		Path: lookExecutable(words[0], getEnv(env, "PATH")),
		Args: words[1:],
		Dir:  dir,
		Env:  env,
	}, nil
}

// ExpandHome replaces a leading ~ with the user's home directory, matching
// how the config file paths are written
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// lookExecutable resolves name against the given search path so that a
// venv's executables shadow system ones. Names containing a path separator
// are returned as written (absolute, or relative to the working
// directory). Lookup failures also return the name as written; the spawn
// reports them.
func lookExecutable(name, pathList string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return ExpandHome(name)
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			dir = "."
		}
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			return p
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode()&0o111 != 0
}

// getEnv returns the value of key in env, last assignment wins
func getEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}

// setEnv replaces the first assignment of key in env, or appends one
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
