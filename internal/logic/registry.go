package logic

import (
	"fmt"
	"sort"
	"sync"
)

// Builder constructs the hook set for one registered native detection.
// Each call returns a fresh map so detections never share hook state.
type Builder func() map[string]HookFunc

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Builder)
)

// Register makes a native logic builder available under the given
// entrypoint name. Registering a name twice is an error.
func Register(name string, b Builder) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" {
		return fmt.Errorf("native logic name must not be empty")
	}
	if b == nil {
		return fmt.Errorf("native logic %q: nil builder", name)
	}
	if _, exists := registry[name]; exists {
		return fmt.Errorf("native logic %q already registered", name)
	}
	registry[name] = b
	return nil
}

// MustRegister is Register for init-time use; it panics on error.
func MustRegister(name string, b Builder) {
	if err := Register(name, b); err != nil {
		panic(err)
	}
}

// Registered returns all registered entrypoint names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildNative binds a detection to a registered builder. An unknown
// entrypoint is a binding error: the spec references logic that does not
// exist in this build.
func buildNative(primary string, spec Spec) (Logic, error) {
	if spec.Entrypoint == "" {
		return nil, fmt.Errorf("native logic requires an Entrypoint")
	}

	registryMu.RLock()
	b, ok := registry[spec.Entrypoint]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("native logic %q is not registered", spec.Entrypoint)
	}

	hooks := b()
	if _, ok := hooks[primary]; !ok {
		return nil, fmt.Errorf("native logic %q does not implement the %s hook", spec.Entrypoint, primary)
	}
	return &hookSet{provider: "native", hooks: hooks}, nil
}
