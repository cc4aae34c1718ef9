// Package runner invokes detection hooks against event payloads,
// capturing panics, timeouts, and bad outputs per hook.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/detlab-project/detlab/internal/logic"
)

// auxHooks is the invocation order for auxiliary hooks. Hooks the
// logic does not declare are skipped.
var auxHooks = []string{
	logic.HookTitle,
	logic.HookDedup,
	logic.HookAlertContext,
	logic.HookSeverity,
	logic.HookDestinations,
	logic.HookGroupingKeys,
}

// Adapter runs hooks with a per-hook watchdog. A zero Timeout runs
// hooks inline on the calling goroutine.
type Adapter struct {
	Timeout time.Duration
}

// Run executes the primary hook and every declared auxiliary hook
// against event. Hook failures are captured in the result, never
// returned: one failing hook does not suppress the others.
func (a *Adapter) Run(ctx context.Context, l logic.Logic, primary string, event map[string]interface{}) *Result {
	start := time.Now()
	res := &Result{Primary: a.invoke(ctx, l, primary, event)}
	if res.Primary.Err == nil {
		if _, ok := res.Primary.Output.(bool); !ok {
			res.Primary.Err = fmt.Errorf("%s hook returned %T, want bool", primary, res.Primary.Output)
			res.Primary.Kind = ErrBadOutput
			res.Primary.Output = nil
		}
	}
	for _, name := range auxHooks {
		if _, ok := l.Hook(name); !ok {
			continue
		}
		res.Aux = append(res.Aux, a.invoke(ctx, l, name, event))
	}
	res.Elapsed = time.Since(start)
	return res
}

func (a *Adapter) invoke(ctx context.Context, l logic.Logic, name string, event map[string]interface{}) FuncResult {
	fr := FuncResult{Hook: name}
	fn, ok := l.Hook(name)
	if !ok {
		fr.Err = fmt.Errorf("logic declares no %s hook", name)
		fr.Kind = ErrMissingHook
		return fr
	}
	start := time.Now()
	if a.Timeout <= 0 {
		fr.Output, fr.Err, fr.Kind = call(ctx, fn, event)
		fr.Elapsed = time.Since(start)
		return fr
	}

	hctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()
	type outcome struct {
		out  interface{}
		err  error
		kind ErrorKind
	}
	done := make(chan outcome, 1)
	go func() {
		out, err, kind := call(hctx, fn, event)
		done <- outcome{out, err, kind}
	}()
	select {
	case o := <-done:
		fr.Output, fr.Err, fr.Kind = o.out, o.err, o.kind
	case <-hctx.Done():
		fr.Err = fmt.Errorf("%s hook exceeded %s", name, a.Timeout)
		fr.Kind = ErrTimeout
	}
	fr.Elapsed = time.Since(start)
	return fr
}

// call runs one hook, converting a panic into an error. An errored
// hook reports no output.
func call(ctx context.Context, fn logic.HookFunc, event map[string]interface{}) (out interface{}, err error, kind ErrorKind) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("hook panicked: %v", r)
			kind = ErrPanic
		}
	}()
	out, err = fn(ctx, event)
	if err != nil {
		return nil, err, ErrInvocation
	}
	return out, nil, ErrNone
}

// InvokeMatcher runs only the primary hook, inline on the calling
// goroutine, and returns its boolean verdict.
func InvokeMatcher(ctx context.Context, l logic.Logic, primary string, event map[string]interface{}) (bool, error) {
	fn, ok := l.Hook(primary)
	if !ok {
		return false, fmt.Errorf("logic declares no %s hook", primary)
	}
	out, err, _ := call(ctx, fn, event)
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%s hook returned %T, want bool", primary, out)
	}
	return matched, nil
}
