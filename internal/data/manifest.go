package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dataset is one test log known to the tool.
type Dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Layout      string `json:"layout"`                // layout preset name, e.g. "cell-hppc"
	Temperature string `json:"temperature,omitempty"` // optional matching LVM thermocouple log
	Kind        string `json:"kind"`                  // "hppc", "discharge", "drive-cycle"
}

// Manifest lists the datasets shipped with a data directory.
type Manifest struct {
	UpdatedAt string    `json:"updated_at"` // ISO 8601 timestamp
	Datasets  []Dataset `json:"datasets"`
}

// LoadManifest loads a dataset manifest from a JSON file. Relative dataset
// paths are resolved against the manifest's directory.
func LoadManifest(filePath string) (*Manifest, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	dir := filepath.Dir(filePath)
	for i := range m.Datasets {
		d := &m.Datasets[i]
		if d.Path != "" && !filepath.IsAbs(d.Path) {
			d.Path = filepath.Join(dir, d.Path)
		}
		if d.Temperature != "" && !filepath.IsAbs(d.Temperature) {
			d.Temperature = filepath.Join(dir, d.Temperature)
		}
	}
	return &m, nil
}

// Find returns the dataset with the given ID.
func (m *Manifest) Find(id string) (Dataset, bool) {
	for _, d := range m.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

// OfKind filters datasets by kind; an empty kind returns everything.
func (m *Manifest) OfKind(kind string) []Dataset {
	out := []Dataset{}
	for _, d := range m.Datasets {
		if kind == "" || strings.EqualFold(d.Kind, kind) {
			out = append(out, d)
		}
	}
	return out
}

// DefaultManifestPath returns the manifest path from DATA_DIR, falling back
// to ./data/manifest.json.
func DefaultManifestPath() string {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "manifest.json")
}

// SaveManifest writes a manifest to a JSON file.
func SaveManifest(m *Manifest, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(filePath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ScanDir builds a manifest from the CSV logs in dir, detecting each file's
// layout from its header. Files matching no preset are skipped. Paths are
// stored relative to dir.
func ScanDir(dir string) (*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	m := &Manifest{Datasets: []Dataset{}}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		layout, err := DetectLayout(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		m.Datasets = append(m.Datasets, Dataset{
			ID:     strings.ToLower(id),
			Name:   id,
			Path:   e.Name(),
			Layout: layout.Name,
			Kind:   kindOf(layout.Name),
		})
	}
	return m, nil
}

func kindOf(layout string) string {
	switch {
	case strings.HasSuffix(layout, "hppc"):
		return "hppc"
	case strings.HasSuffix(layout, "discharge"):
		return "discharge"
	default:
		return "drive-cycle"
	}
}
