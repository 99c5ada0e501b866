package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"battery-ecm/internal/ecm"
)

// LoadModelJSON reads a model written by SaveModelJSON.
func LoadModelJSON(path string) (*ecm.Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m ecm.Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return &m, nil
}

// SaveModelJSON writes a model, creating the parent directory.
func SaveModelJSON(m *ecm.Model, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}
