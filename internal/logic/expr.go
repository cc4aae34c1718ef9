package logic

import (
	"context"
	"fmt"
	"sort"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// exprLanguage is the dialect for expr-provider hooks: the full gval
// language extended with JSONPath selectors, so both bare field names and
// $.nested.path references work inside one expression.
var exprLanguage = gval.Full(jsonpath.Language())

// buildExpr compiles every declared expression at bind time. A compile
// failure invalidates the whole detection before any test runs, matching
// how an unparsable native module would behave.
func buildExpr(primary string, spec Spec) (Logic, error) {
	if spec.Match == "" {
		return nil, fmt.Errorf("expr logic requires a Match expression")
	}

	hooks := make(map[string]HookFunc)

	match, err := compileExpr("Match", spec.Match)
	if err != nil {
		return nil, err
	}
	hooks[primary] = boolHook(spec.Match, match)

	scalars := []struct {
		hook string
		name string
		expr string
	}{
		{HookTitle, "Title", spec.Title},
		{HookDedup, "Dedup", spec.Dedup},
		{HookSeverity, "Severity", spec.Severity},
	}
	for _, s := range scalars {
		if s.expr == "" {
			continue
		}
		eval, err := compileExpr(s.name, s.expr)
		if err != nil {
			return nil, err
		}
		hooks[s.hook] = stringHook(s.expr, eval)
	}

	lists := []struct {
		hook  string
		name  string
		exprs []string
	}{
		{HookDestinations, "Destinations", spec.Destinations},
		{HookGroupingKeys, "GroupingKeys", spec.GroupingKeys},
	}
	for _, l := range lists {
		if len(l.exprs) == 0 {
			continue
		}
		evals := make([]gval.Evaluable, len(l.exprs))
		for i, expr := range l.exprs {
			eval, err := compileExpr(l.name, expr)
			if err != nil {
				return nil, err
			}
			evals[i] = eval
		}
		hooks[l.hook] = listHook(l.exprs, evals)
	}

	if len(spec.AlertContext) > 0 {
		keys := make([]string, 0, len(spec.AlertContext))
		evals := make(map[string]gval.Evaluable, len(spec.AlertContext))
		for key, expr := range spec.AlertContext {
			eval, err := compileExpr("AlertContext."+key, expr)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
			evals[key] = eval
		}
		sort.Strings(keys)
		hooks[HookAlertContext] = mapHook(keys, evals)
	}

	return &hookSet{provider: "expr", hooks: hooks}, nil
}

func compileExpr(field, expr string) (gval.Evaluable, error) {
	eval, err := exprLanguage.NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %s expression: %w", field, err)
	}
	return eval, nil
}

// boolHook wraps a compiled predicate. Non-boolean results are invocation
// errors rather than silent coercions.
func boolHook(src string, eval gval.Evaluable) HookFunc {
	return func(ctx context.Context, event map[string]interface{}) (interface{}, error) {
		v, err := eval(ctx, event)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expression %q returned %T, want bool", src, v)
		}
		return b, nil
	}
}

// stringHook wraps a compiled string-producing expression.
func stringHook(src string, eval gval.Evaluable) HookFunc {
	return func(ctx context.Context, event map[string]interface{}) (interface{}, error) {
		v, err := eval(ctx, event)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expression %q returned %T, want string", src, v)
		}
		return s, nil
	}
}

// listHook evaluates each element expression and collects the string
// results in declaration order.
func listHook(srcs []string, evals []gval.Evaluable) HookFunc {
	return func(ctx context.Context, event map[string]interface{}) (interface{}, error) {
		out := make([]string, len(evals))
		for i, eval := range evals {
			v, err := eval(ctx, event)
			if err != nil {
				return nil, fmt.Errorf("element %q: %w", srcs[i], err)
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("element %q returned %T, want string", srcs[i], v)
			}
			out[i] = s
		}
		return out, nil
	}
}

// mapHook evaluates the per-key expressions in sorted key order and
// returns the assembled context map. Values keep whatever type their
// expression produced.
func mapHook(keys []string, evals map[string]gval.Evaluable) HookFunc {
	return func(ctx context.Context, event map[string]interface{}) (interface{}, error) {
		out := make(map[string]interface{}, len(keys))
		for _, key := range keys {
			v, err := evals[key](ctx, event)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = v
		}
		return out, nil
	}
}
