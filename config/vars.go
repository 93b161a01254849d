package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// VarsFileEnv overrides where stored variables live.
const VarsFileEnv = "RABBITRY_VARS_FILE"

// ErrVarNotFound is returned when a stored variable does not exist.
var ErrVarNotFound = errors.New("variable not found")

// VarStore keeps operator-supplied values such as API keys and the
// database DSN in a name=value file outside the config directory.
type VarStore struct {
	Path string
}

// DefaultVarStore uses $RABBITRY_VARS_FILE, else ~/.rabbitry/vars.txt.
func DefaultVarStore() (*VarStore, error) {
	if p := os.Getenv(VarsFileEnv); p != "" {
		return &VarStore{Path: p}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locate vars file: %w", err)
	}
	return &VarStore{Path: filepath.Join(home, ".rabbitry", "vars.txt")}, nil
}

// Load reads every stored value. A missing file holds nothing.
func (s *VarStore) Load() (map[string]string, error) {
	vars := make(map[string]string)

	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return vars, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(name)] = value
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return vars, nil
}

// save rewrites the file sorted by name, owner-readable only.
func (s *VarStore) save(vars map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}

	var b strings.Builder
	for _, name := range sortedNames(vars) {
		fmt.Fprintf(&b, "%s=%s\n", name, vars[name])
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

func (s *VarStore) Get(name string) (string, error) {
	vars, err := s.Load()
	if err != nil {
		return "", err
	}
	value, ok := vars[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVarNotFound, name)
	}
	return value, nil
}

func (s *VarStore) Set(name, value string) error {
	if strings.ContainsAny(name, "=\n") || strings.TrimSpace(name) == "" {
		return fmt.Errorf("invalid variable name %q", name)
	}
	if strings.Contains(value, "\n") {
		return fmt.Errorf("variable %s: value cannot span lines", name)
	}
	vars, err := s.Load()
	if err != nil {
		return err
	}
	vars[name] = value
	return s.save(vars)
}

func (s *VarStore) Delete(name string) error {
	vars, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := vars[name]; !ok {
		return fmt.Errorf("%w: %s", ErrVarNotFound, name)
	}
	delete(vars, name)
	return s.save(vars)
}

// Resolve returns the effective value of v: stored value, then the
// environment, then the declared default.
func (s *VarStore) Resolve(v *Variable) (string, error) {
	stored, err := s.Load()
	if err != nil {
		return "", err
	}
	return resolveVar(stored, v), nil
}

func resolveVar(stored map[string]string, v *Variable) string {
	if value, ok := stored[v.Name]; ok {
		return value
	}
	if value, ok := os.LookupEnv(v.EnvName()); ok {
		return value
	}
	return v.Default
}

func sortedNames(vars map[string]string) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
