// Package classmap loads the class-id to class-name mapping shipped as a
// YAML sidecar next to the model artifact.
package classmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML mapping of class id to class name.
func Load(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classmap: read %s: %w", path, err)
	}
	m := make(map[int]string)
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("classmap: parse %s: %w", path, err)
	}
	return m, nil
}

// ForModel loads the sidecar mapping for a model artifact: the artifact path
// with its extension replaced by .yaml. A missing sidecar is not an error;
// it returns (nil, nil) and only the name-keyed presentation format will
// refuse to run.
func ForModel(modelPath string) (map[int]string, error) {
	ext := filepath.Ext(modelPath)
	sidecar := strings.TrimSuffix(modelPath, ext) + ".yaml"
	if _, err := os.Stat(sidecar); os.IsNotExist(err) {
		return nil, nil
	}
	return Load(sidecar)
}
