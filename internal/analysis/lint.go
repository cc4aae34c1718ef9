package analysis

import "fmt"

// Issue is one lint finding tied to the spec file it came from.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Lint checks a loaded tree without executing anything. Invalid specs
// surface as errors; coverage shortfalls, unknown log types, and
// disabled detections surface as warnings. Log type checks only run
// when schemas were provided.
func Lint(res *LoadResult, schemas SchemaSet, minimumTests int) (errs, warnings []Issue) {
	for _, inv := range res.Invalid {
		errs = append(errs, Issue{Path: inv.Path, Message: inv.Err.Error()})
	}
	for _, det := range res.Detections {
		if schemas.Len() > 0 {
			for _, lt := range det.LogTypes {
				if !schemas.Has(lt) {
					warnings = append(warnings, Issue{
						Path:    det.SourcePath,
						Message: fmt.Sprintf("%s: log type %q has no schema", det.ID, lt),
					})
				}
			}
		}
		if det.Kind.RequiresTests() && len(det.Tests) < minimumTests {
			warnings = append(warnings, Issue{
				Path:    det.SourcePath,
				Message: fmt.Sprintf("%s: %d tests declared, %d required", det.ID, len(det.Tests), minimumTests),
			})
		}
		if !det.Enabled {
			warnings = append(warnings, Issue{
				Path:    det.SourcePath,
				Message: fmt.Sprintf("%s is disabled", det.ID),
			})
		}
	}
	return errs, warnings
}
