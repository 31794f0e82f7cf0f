package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelEntry describes one downloadable model file.
type ModelEntry struct {
	// Name is a friendly label (usually the style preset)
	Name string `yaml:"name"`
	// File is the local file name inside the model directory
	File string `yaml:"file"`
	// URL overrides the hub URL for this file
	URL string `yaml:"url,omitempty"`
	// SHA256 is the expected lowercase hex digest (optional)
	SHA256 string `yaml:"sha256,omitempty"`
	// SizeBytes is informational, shown by `paprika models list`
	SizeBytes int64 `yaml:"size_bytes,omitempty"`
}

// Catalog is the YAML model catalog:
//
//	models:
//	  - name: paprika
//	    file: paprika.onnx
//	    url: https://example.com/animegan2/paprika.onnx
//	    sha256: 9f2c...
type Catalog struct {
	Models []ModelEntry `yaml:"models"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrInvalidCatalog(path, err.Error())
	}
	return ParseCatalog(path, data)
}

// ParseCatalog decodes catalog YAML. path is used only in error messages.
func ParseCatalog(path string, data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, ErrInvalidCatalog(path, err.Error())
	}

	seen := make(map[string]bool, len(c.Models))
	for i := range c.Models {
		m := &c.Models[i]
		m.File = strings.TrimSpace(m.File)
		if m.File == "" {
			return nil, ErrInvalidCatalog(path, fmt.Sprintf("entry %d has no file", i))
		}
		if filepath.Base(m.File) != m.File {
			return nil, ErrInvalidCatalog(path, fmt.Sprintf("file %q must be a bare file name", m.File))
		}
		if seen[m.File] {
			return nil, ErrInvalidCatalog(path, fmt.Sprintf("duplicate file %q", m.File))
		}
		seen[m.File] = true

		sum, err := NormalizeSHA256(m.SHA256)
		if err != nil {
			return nil, ErrInvalidCatalog(path, fmt.Sprintf("file %q: %v", m.File, err))
		}
		m.SHA256 = sum
	}
	return &c, nil
}

// Lookup returns the entry for file.
func (c *Catalog) Lookup(file string) (ModelEntry, bool) {
	if c == nil {
		return ModelEntry{}, false
	}
	for _, m := range c.Models {
		if m.File == file {
			return m, true
		}
	}
	return ModelEntry{}, false
}

// Marshal encodes the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
