// Package logic binds detection specs to executable hook functions.
package logic

import (
	"context"
	"fmt"
	"sort"
)

// Hook function names. A detection's logic implements a subset of these;
// only the primary predicate (rule or policy, depending on kind) is required.
const (
	HookRule         = "rule"
	HookPolicy       = "policy"
	HookTitle        = "title"
	HookDedup        = "dedup"
	HookAlertContext = "alert_context"
	HookSeverity     = "severity"
	HookDestinations = "destinations"
	HookGroupingKeys = "grouping_keys"
)

// HookFunc evaluates a single capability against one event. Events are
// plain JSON-shaped maps; hooks are pure computation and must not perform
// network or disk I/O.
type HookFunc func(ctx context.Context, event map[string]interface{}) (interface{}, error)

// Logic is the capability set bound to one detection. Callers probe for a
// hook by name instead of relying on dynamic dispatch, so a missing
// capability is an explicit lookup miss rather than a runtime surprise.
type Logic interface {
	// Provider returns the provider name ("native", "expr", "sigma").
	Provider() string
	// Hook returns the named hook function and whether it is implemented.
	Hook(name string) (HookFunc, bool)
	// HookNames returns the implemented hook names in sorted order.
	HookNames() []string
}

// Spec declares how a detection binds its logic, decoded from the spec
// file's Logic block. Fields are provider-specific: Entrypoint for native,
// the expression fields for expr, SigmaRule for sigma.
type Spec struct {
	Provider     string            `yaml:"Provider"`
	Entrypoint   string            `yaml:"Entrypoint"`
	Match        string            `yaml:"Match"`
	Title        string            `yaml:"Title"`
	Dedup        string            `yaml:"Dedup"`
	Severity     string            `yaml:"Severity"`
	Destinations []string          `yaml:"Destinations"`
	GroupingKeys []string          `yaml:"GroupingKeys"`
	AlertContext map[string]string `yaml:"AlertContext"`
	SigmaRule    string            `yaml:"SigmaRule"`
}

// Build constructs the Logic for a spec. primary names the hook the
// detection kind requires (HookRule or HookPolicy). A binding failure
// means the detection must be reported invalid, never executed.
func Build(primary string, spec Spec) (Logic, error) {
	switch spec.Provider {
	case "native":
		return buildNative(primary, spec)
	case "expr":
		return buildExpr(primary, spec)
	case "sigma":
		return buildSigma(primary, spec)
	case "":
		return nil, fmt.Errorf("logic provider is required (native, expr, sigma)")
	default:
		return nil, fmt.Errorf("unknown logic provider %q", spec.Provider)
	}
}

// hookSet is the map-backed Logic implementation shared by all providers.
type hookSet struct {
	provider string
	hooks    map[string]HookFunc
}

func (h *hookSet) Provider() string { return h.provider }

func (h *hookSet) Hook(name string) (HookFunc, bool) {
	fn, ok := h.hooks[name]
	return fn, ok
}

func (h *hookSet) HookNames() []string {
	names := make([]string, 0, len(h.hooks))
	for name := range h.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// staticHook returns a hook that yields a constant value.
func staticHook(v interface{}) HookFunc {
	return func(context.Context, map[string]interface{}) (interface{}, error) {
		return v, nil
	}
}
