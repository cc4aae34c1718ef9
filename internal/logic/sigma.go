package logic

import (
	"context"
	"fmt"

	sigmalib "github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
)

// buildSigma parses an inline Sigma rule and exposes its match decision as
// the primary predicate. The rule's title and level, when present, double
// as static title/severity hooks so Sigma-backed detections report the
// same way expr-backed ones do.
func buildSigma(primary string, spec Spec) (Logic, error) {
	if spec.SigmaRule == "" {
		return nil, fmt.Errorf("sigma logic requires a SigmaRule block")
	}
	rule, err := sigmalib.ParseRule([]byte(spec.SigmaRule))
	if err != nil {
		return nil, fmt.Errorf("parse sigma rule: %w", err)
	}
	ev := evaluator.ForRule(rule)

	hooks := map[string]HookFunc{
		primary: func(ctx context.Context, event map[string]interface{}) (interface{}, error) {
			res, err := ev.Matches(ctx, event)
			if err != nil {
				return nil, fmt.Errorf("sigma match: %w", err)
			}
			return res.Match, nil
		},
	}
	if rule.Title != "" {
		hooks[HookTitle] = staticHook(rule.Title)
	}
	if rule.Level != "" {
		hooks[HookSeverity] = staticHook(rule.Level)
	}
	return &hookSet{provider: "sigma", hooks: hooks}, nil
}
