// Package state persists small client preferences between runs, such as the
// dashboard's notification filter. It lives in the state directory, not in
// the configuration.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/pharmastock/pkg/paths"
	"gopkg.in/yaml.v3"
)

// Keys used by pharmastock.
const (
	KeyDashboardFilter = "dashboard.filter"
)

// State is a generic map of key-value pairs.
type State map[string]interface{}

// FilePath returns the path of the state file.
func FilePath() (string, error) {
	dir := paths.StateDir()
	if dir == "" {
		return "", fmt.Errorf("no state directory available")
	}
	return filepath.Join(dir, "state.yml"), nil
}

// Load loads the state file. A missing file is an empty state.
func Load() (State, error) {
	path, err := FilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(State), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if state == nil {
		state = make(State)
	}
	return state, nil
}

// Save writes the state file.
func Save(state State) error {
	path, err := FilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func Get(key string) (interface{}, bool, error) {
	state, err := Load()
	if err != nil {
		return nil, false, err
	}
	val, ok := state[key]
	return val, ok, nil
}

// GetString returns the string stored under key, or "" when the key is
// missing or not a string.
func GetString(key string) (string, error) {
	val, ok, err := Get(key)
	if err != nil || !ok {
		return "", err
	}
	str, _ := val.(string)
	return str, nil
}

// Set stores value under key.
func Set(key string, value interface{}) error {
	state, err := Load()
	if err != nil {
		return err
	}
	state[key] = value
	return Save(state)
}

// Delete removes key.
func Delete(key string) error {
	state, err := Load()
	if err != nil {
		return err
	}
	delete(state, key)
	return Save(state)
}
