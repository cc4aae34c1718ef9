package runner

import "time"

// ErrorKind classifies how a hook invocation failed.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrPanic
	ErrTimeout
	ErrMissingHook
	ErrBadOutput
	ErrInvocation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrPanic:
		return "panic"
	case ErrTimeout:
		return "timeout"
	case ErrMissingHook:
		return "missing_hook"
	case ErrBadOutput:
		return "bad_output"
	case ErrInvocation:
		return "invocation_error"
	default:
		return "unknown"
	}
}

// FuncResult is the outcome of one hook invocation.
type FuncResult struct {
	Hook    string
	Output  interface{}
	Err     error
	Kind    ErrorKind
	Elapsed time.Duration
}

func (r FuncResult) OK() bool { return r.Err == nil }

// Result is the outcome of running a detection's hooks against one
// event: the primary verdict plus every auxiliary hook the logic
// declares.
type Result struct {
	Primary FuncResult
	Aux     []FuncResult
	Elapsed time.Duration
}

// Matched reports the primary verdict. An errored primary hook never
// matches.
func (r *Result) Matched() bool {
	return r.Primary.Err == nil && r.Primary.Output == true
}

// Lookup finds an auxiliary outcome by hook name.
func (r *Result) Lookup(hook string) (FuncResult, bool) {
	for _, fr := range r.Aux {
		if fr.Hook == hook {
			return fr, true
		}
	}
	return FuncResult{}, false
}

// All returns the primary outcome followed by the auxiliary outcomes.
func (r *Result) All() []FuncResult {
	return append([]FuncResult{r.Primary}, r.Aux...)
}
