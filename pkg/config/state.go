package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// State holds what the last session left selected.
type State struct {
	View    string `yaml:"view,omitempty"`
	Backend string `yaml:"backend,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// StatePath is overridable in tests.
var StatePath = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, "state.yaml"), nil
}

// LoadState reads the state file. A missing file is an empty state.
func LoadState() (*State, error) {
	path, err := StatePath()
	if err != nil {
		return &State{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return &State{}, err
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return &State{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return &state, nil
}

// SaveState writes the state file.
func SaveState(state *State) error {
	path, err := StatePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
