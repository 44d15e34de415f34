package tasks

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk template format. The same fields are read from YAML
// and TOML files.
type File struct {
	ID         string `yaml:"id" toml:"id"`
	Definition `yaml:",inline"`
}

// LoadTemplateFile parses one template file. The format follows the extension.
func LoadTemplateFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported template format: %s", path)
	}

	if f.ID == "" {
		f.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &f, nil
}

// LoadTemplates registers every *.yaml, *.yml and *.toml file in dir, in
// lexical file order. A missing directory is not an error.
func (g *Generator) LoadTemplates(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading template dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".toml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		f, err := LoadTemplateFile(p)
		if err != nil {
			return 0, err
		}
		if err := g.AddTemplate(f.ID, f.Definition); err != nil {
			return 0, fmt.Errorf("template %s: %w", f.ID, err)
		}
		log.Printf("Added task template: %s", f.ID)
	}
	return len(paths), nil
}
