package slide

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

// Manifest describes a pyramid stored as one image file per level.
//
//	levels:
//	  - path: level0.tif
//	    spacing: 0.25
//	  - path: level1.tif
//	    spacing: 1.0
type Manifest struct {
	Name   string          `yaml:"name,omitempty"`
	Levels []ManifestLevel `yaml:"levels"`
}

// ManifestLevel is one level entry. Relative paths are resolved against the
// manifest's directory.
type ManifestLevel struct {
	Path    string  `yaml:"path"`
	Spacing float64 `yaml:"spacing"`
}

// ReadManifest parses a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(m.Levels) == 0 {
		return nil, fmt.Errorf("manifest %s: %w", path, ErrNoLevels)
	}
	return &m, nil
}

// Open loads every level listed in the manifest at path. Unreadable or
// corrupt level files fail the whole open.
func Open(path string) (*Stack, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	levels := make([]image.Image, len(m.Levels))
	spacings := make([]float64, len(m.Levels))
	for i, l := range m.Levels {
		p := l.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		img, err := DecodeFile(p)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels[i] = img
		spacings[i] = l.Spacing
	}

	stack, err := NewStack(levels, spacings)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	stack.Path = path
	return stack, nil
}

// Save writes every level as a PNG into dir together with a manifest.yaml
// and returns the manifest path.
func (s *Stack) Save(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pyramid directory: %w", err)
	}

	m := Manifest{Name: name}
	for i, img := range s.levels {
		file := fmt.Sprintf("level%d.png", i)
		if err := imaging.Save(img, filepath.Join(dir, file)); err != nil {
			return "", fmt.Errorf("failed to save level %d: %w", i, err)
		}
		m.Levels = append(m.Levels, ManifestLevel{Path: file, Spacing: s.spacings[i]})
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return manifestPath, nil
}

// DecodeFile decodes a single image file (PNG, JPEG or TIFF).
func DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}
