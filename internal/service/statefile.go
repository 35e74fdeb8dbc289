package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the snapshot the background instance leaves for the status
// command.
type State struct {
	PID                int       `yaml:"pid"`
	Status             string    `yaml:"status"`
	Target             string    `yaml:"target"`
	StartedAt          time.Time `yaml:"started_at"`
	Injections         int       `yaml:"injections"`
	LastInjection      time.Time `yaml:"last_injection,omitempty"`
	TargetRunning      bool      `yaml:"target_running"`
	IdleTimeoutSeconds int       `yaml:"idle_timeout_seconds"`
}

// WriteState replaces the file at path atomically.
func WriteState(path string, st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func ReadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}
	return &st, nil
}
