// Package filter selects detections by matching the scalar metadata
// fields of their spec files.
package filter

import (
	"fmt"
	"strings"

	"github.com/detlab-project/detlab/internal/analysis"
)

// Clause is one KEY=V1,V2 requirement. A detection satisfies a clause
// when its KEY field equals any member. The empty string member matches
// a detection that has no KEY field at all.
type Clause struct {
	Key    string
	Values []string
}

// Filter is the conjunction of its clauses. A filter with no clauses
// selects everything.
type Filter struct {
	Clauses []Clause
}

// Parse builds a filter from KEY=VALUE[,VALUE...] arguments. Malformed
// input is an error; a run never proceeds on a filter that failed to
// parse. The two-character literals "" and '' denote the empty member,
// as does a trailing or lone comma.
func Parse(args []string) (*Filter, error) {
	f := &Filter{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("malformed filter %q: want KEY=VALUE[,VALUE...]", arg)
		}
		if key == "" {
			return nil, fmt.Errorf("malformed filter %q: empty key", arg)
		}
		values := strings.Split(raw, ",")
		for i, v := range values {
			if v == `""` || v == "''" {
				values[i] = ""
			}
		}
		f.Clauses = append(f.Clauses, Clause{Key: key, Values: values})
	}
	return f, nil
}

// Select returns the detections satisfying the filter, preserving the
// input order.
func (f *Filter) Select(dets []*analysis.Detection) []*analysis.Detection {
	if len(f.Clauses) == 0 {
		return dets
	}
	out := make([]*analysis.Detection, 0, len(dets))
	for _, det := range dets {
		if f.Matches(det) {
			out = append(out, det)
		}
	}
	return out
}

// Matches reports whether det satisfies every clause.
func (f *Filter) Matches(det *analysis.Detection) bool {
	for _, c := range f.Clauses {
		if !clauseMatches(c, det) {
			return false
		}
	}
	return true
}

func clauseMatches(c Clause, det *analysis.Detection) bool {
	got, present := det.MetaValue(c.Key)
	for _, want := range c.Values {
		if !present {
			if want == "" {
				return true
			}
			continue
		}
		if got == want {
			return true
		}
	}
	return false
}

func (f *Filter) String() string {
	parts := make([]string, 0, len(f.Clauses))
	for _, c := range f.Clauses {
		parts = append(parts, c.Key+"="+strings.Join(c.Values, ","))
	}
	return strings.Join(parts, " ")
}
