package fake

import (
	"slices"
	"sync"
)

// Call records a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// CallRecorder tracks method calls for assertion in tests.
type CallRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *CallRecorder) record(method string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	r.mu.Unlock()
}

// Calls returns recorded calls. If method is "", returns all calls.
func (r *CallRecorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	if method == "" {
		return slices.Clone(r.calls)
	}

	var out []Call
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the ordered method names of recorded calls. When only is
// non-empty, calls to other methods are skipped, which keeps assertions stable
// against calls made from background goroutines.
func (r *CallRecorder) Methods(only ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, c := range r.calls {
		if len(only) > 0 && !slices.Contains(only, c.Method) {
			continue
		}
		out = append(out, c.Method)
	}
	return out
}

// Reset clears all recorded calls.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
