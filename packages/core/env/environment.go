package env

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
)

// EnvironmentsDir is the directory, relative to the project directory, that
// holds one file per named environment.
const EnvironmentsDir = "environments"

var environmentExtensions = []string{".toml", ".yaml", ".yml"}

var environmentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Environment is a named set of variable bindings. It is read-only once
// loaded.
type Environment struct {
	Name      string
	Path      string
	Variables map[string]any
}

type environmentFile struct {
	Variables map[string]any `toml:"variables" yaml:"variables"`
}

// LoadEnvironment builds the environment called name from
// <dir>/environments/<name>.{toml,yaml,yml}, layered over base (usually the
// [variables] of the project config). An empty name yields base alone.
//
// ${VAR} references are expanded once, here, through lookup. Every failure is
// a *config.ConfigError.
func LoadEnvironment(dir, name string, base map[string]any, lookup LookupFunc) (*Environment, error) {
	env := &Environment{
		Name:      name,
		Variables: make(map[string]any, len(base)),
	}
	for k, v := range base {
		env.Variables[k] = v
	}

	if name != "" {
		if !environmentNamePattern.MatchString(name) {
			return nil, config.Errorf("", "invalid environment name %q", name)
		}
		path, err := findEnvironmentFile(dir, name)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &config.ConfigError{Path: path, Message: "cannot read environment", Err: err}
		}
		var file environmentFile
		if err := config.DecodeFile(path, data, &file); err != nil {
			return nil, err
		}
		for k, v := range file.Variables {
			env.Variables[k] = v
		}
		env.Path = path
	}

	if lookup == nil {
		lookup = ProcessLookup(nil)
	}
	keys := make([]string, 0, len(env.Variables))
	for k := range env.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		expanded, err := ExpandProcessRefs(env.Variables[k], lookup)
		if err != nil {
			var undefined *UndefinedVariableError
			if errors.As(err, &undefined) {
				return nil, config.Errorf(env.Path, "variable %q references ${%s}, which is not set", k, undefined.Name)
			}
			return nil, config.Errorf(env.Path, "variable %q: %v", k, err)
		}
		env.Variables[k] = expanded
	}

	return env, nil
}

func findEnvironmentFile(dir, name string) (string, error) {
	base := filepath.Join(dir, EnvironmentsDir, name)
	for _, ext := range environmentExtensions {
		path := base + ext
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if names, _ := ListEnvironments(dir); len(names) > 0 {
		return "", config.Errorf("", "environment %q not found (available: %s)", name, strings.Join(names, ", "))
	}
	return "", config.Errorf("", "environment %q not found, create %s.toml", name, base)
}

// WithOverrides returns a copy of the environment where vars replace existing
// bindings. Overrides are taken verbatim, without ${VAR} expansion.
func (e *Environment) WithOverrides(vars map[string]string) *Environment {
	out := &Environment{
		Name:      e.Name,
		Path:      e.Path,
		Variables: make(map[string]any, len(e.Variables)+len(vars)),
	}
	for k, v := range e.Variables {
		out.Variables[k] = v
	}
	for k, v := range vars {
		out.Variables[k] = v
	}
	return out
}

// ListEnvironments returns the names of the environments defined under dir.
func ListEnvironments(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, EnvironmentsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, known := range environmentExtensions {
			if ext != known {
				continue
			}
			name := entry.Name()[:len(entry.Name())-len(ext)]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, nil
}
