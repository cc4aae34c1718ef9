package analysis

import (
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/detlab-project/detlab/internal/logic"
)

// specFile mirrors the YAML layout of a detection spec file.
type specFile struct {
	AnalysisType string      `yaml:"AnalysisType"`
	RuleID       string      `yaml:"RuleID"`
	PolicyID     string      `yaml:"PolicyID"`
	GlobalID     string      `yaml:"GlobalID"`
	QueryID      string      `yaml:"QueryID"`
	DisplayName  string      `yaml:"DisplayName"`
	Enabled      *bool       `yaml:"Enabled"`
	Severity     string      `yaml:"Severity"`
	Description  string      `yaml:"Description"`
	LogTypes     []string    `yaml:"LogTypes"`
	Tags         []string    `yaml:"Tags"`
	Logic        *logic.Spec `yaml:"Logic"`
	Tests        []testSpec  `yaml:"Tests"`
}

type testSpec struct {
	Name                 string                 `yaml:"Name"`
	ExpectedResult       bool                   `yaml:"ExpectedResult"`
	Log                  map[string]interface{} `yaml:"Log"`
	Resource             map[string]interface{} `yaml:"Resource"`
	ExpectedTitle        *string                `yaml:"ExpectedTitle"`
	ExpectedDedup        *string                `yaml:"ExpectedDedup"`
	ExpectedSeverity     *string                `yaml:"ExpectedSeverity"`
	ExpectedDestinations []string               `yaml:"ExpectedDestinations"`
	ExpectedGroupingKeys []string               `yaml:"ExpectedGroupingKeys"`
	ExpectedAlertContext map[string]interface{} `yaml:"ExpectedAlertContext"`
}

// Load walks fsys for *.yml and *.yaml spec files and builds detections.
// Files that fail to parse, validate, or bind become InvalidSpec entries
// instead of aborting the walk. Detections come back in lexical path
// order, the order fs.WalkDir visits them.
func Load(fsys fs.FS) (*LoadResult, error) {
	res := &LoadResult{}
	seen := map[string]string{} // detection ID -> first declaring file

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isSpecPath(p) {
			return nil
		}
		det, ferr := loadFile(fsys, p)
		if ferr != nil {
			res.Invalid = append(res.Invalid, InvalidSpec{Path: p, Err: ferr})
			return nil
		}
		if first, dup := seen[det.ID]; dup {
			res.Invalid = append(res.Invalid, InvalidSpec{
				Path: p,
				Err:  fmt.Errorf("duplicate detection id %q, already declared in %s", det.ID, first),
			})
			return nil
		}
		seen[det.ID] = p
		res.Detections = append(res.Detections, det)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func isSpecPath(p string) bool {
	ext := path.Ext(p)
	return ext == ".yml" || ext == ".yaml"
}

func loadFile(fsys fs.FS, p string) (*Detection, error) {
	raw, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, err
	}
	var sf specFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	kind, err := kindFor(sf.AnalysisType)
	if err != nil {
		return nil, err
	}
	id, err := specID(kind, &sf)
	if err != nil {
		return nil, err
	}
	if err := checkShape(kind, &sf); err != nil {
		return nil, err
	}

	det := &Detection{
		ID:          id,
		Kind:        kind,
		DisplayName: sf.DisplayName,
		Enabled:     sf.Enabled == nil || *sf.Enabled,
		Severity:    sf.Severity,
		Description: sf.Description,
		LogTypes:    sf.LogTypes,
		Tags:        sf.Tags,
		SourcePath:  p,
		Meta:        scalarFields(raw),
	}
	if sf.Logic != nil {
		l, err := logic.Build(kind.PrimaryHook(), *sf.Logic)
		if err != nil {
			return nil, fmt.Errorf("bind logic: %w", err)
		}
		det.Logic = l
	}
	tests, err := buildTests(sf.Tests)
	if err != nil {
		return nil, err
	}
	det.Tests = tests
	return det, nil
}

func kindFor(analysisType string) (Kind, error) {
	switch k := Kind(analysisType); k {
	case KindRule, KindPolicy, KindGlobal, KindQuery:
		return k, nil
	case "":
		return "", fmt.Errorf("missing AnalysisType")
	default:
		return "", fmt.Errorf("unknown AnalysisType %q", analysisType)
	}
}

// specID picks the kind's ID field. Each kind declares its own key.
func specID(kind Kind, sf *specFile) (string, error) {
	key, val := "RuleID", sf.RuleID
	switch kind {
	case KindPolicy:
		key, val = "PolicyID", sf.PolicyID
	case KindGlobal:
		key, val = "GlobalID", sf.GlobalID
	case KindQuery:
		key, val = "QueryID", sf.QueryID
	}
	if val == "" {
		return "", fmt.Errorf("missing %s", key)
	}
	return val, nil
}

func checkShape(kind Kind, sf *specFile) error {
	switch kind {
	case KindQuery:
		if sf.Logic != nil {
			return fmt.Errorf("query specs must not declare Logic")
		}
	case KindRule, KindPolicy:
		if sf.Logic == nil {
			return fmt.Errorf("%s spec declares no Logic", kind)
		}
	}
	if len(sf.Tests) > 0 && sf.Logic == nil {
		return fmt.Errorf("%d tests declared but no Logic to run them", len(sf.Tests))
	}
	return nil
}

func buildTests(specs []testSpec) ([]UnitTest, error) {
	names := make(map[string]bool, len(specs))
	tests := make([]UnitTest, 0, len(specs))
	for i, ts := range specs {
		if ts.Name == "" {
			return nil, fmt.Errorf("test %d has no Name", i)
		}
		if names[ts.Name] {
			return nil, fmt.Errorf("duplicate test name %q", ts.Name)
		}
		names[ts.Name] = true
		event := ts.Log
		if event == nil {
			event = ts.Resource
		}
		tests = append(tests, UnitTest{
			Name:                 ts.Name,
			ExpectedResult:       ts.ExpectedResult,
			Event:                event,
			ExpectedTitle:        ts.ExpectedTitle,
			ExpectedDedup:        ts.ExpectedDedup,
			ExpectedSeverity:     ts.ExpectedSeverity,
			ExpectedDestinations: ts.ExpectedDestinations,
			ExpectedGroupingKeys: ts.ExpectedGroupingKeys,
			ExpectedAlertContext: ts.ExpectedAlertContext,
		})
	}
	return tests, nil
}

// scalarFields re-reads the document generically and keeps every
// top-level scalar field, stringified. Filter clauses match against
// these values.
func scalarFields(raw []byte) map[string]string {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	meta := make(map[string]string, len(doc))
	for k, v := range doc {
		switch v.(type) {
		case string, bool, int, int64, uint64, float64:
			meta[k] = fmt.Sprint(v)
		}
	}
	return meta
}
