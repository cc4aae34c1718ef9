package analysis

import (
	"fmt"
	"io/fs"
	"sort"

	"gopkg.in/yaml.v3"
)

// Schema describes the shape of one log type. Schema files use the
// lowercase key layout of log source definitions, not the TitleCase
// layout of detection specs.
type Schema struct {
	Name        string        `yaml:"schema"`
	Description string        `yaml:"description"`
	Version     int           `yaml:"version"`
	Fields      []SchemaField `yaml:"fields"`
}

type SchemaField struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// SchemaSet indexes schemas by log type name.
type SchemaSet map[string]*Schema

func (s SchemaSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s SchemaSet) Len() int { return len(s) }

// Names returns the known log type names, sorted.
func (s SchemaSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadSchemas reads every *.yml / *.yaml schema under fsys. A malformed
// schema file aborts the load.
func LoadSchemas(fsys fs.FS) (SchemaSet, error) {
	set := SchemaSet{}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isSpecPath(p) {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		var sc Schema
		if err := yaml.Unmarshal(raw, &sc); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if sc.Name == "" {
			return fmt.Errorf("%s: missing schema name", p)
		}
		set[sc.Name] = &sc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
