// internal/supervisor/mock.go
package supervisor

import (
	"context"
	"sync"
)

// MockPlatform is a Platform for tests. Unset Func fields fall back to "no process
// running", a successful start with PID 4242, and a successful terminate.
type MockPlatform struct {
	FindProcessFunc func(ctx context.Context, name, cmdlineSubstr string) (Handle, bool, error)
	StartFunc       func(ctx context.Context, spec StartSpec) (Handle, error)
	TerminateFunc   func(ctx context.Context, h Handle) error

	// Calls records all method invocations for verification.
	Calls []PlatformCall

	mu sync.Mutex
}

// PlatformCall records a single method invocation.
type PlatformCall struct {
	Method string
	Spec   StartSpec
	Handle Handle
}

var _ Platform = (*MockPlatform)(nil)

func (m *MockPlatform) record(c PlatformCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// CallCount returns how many times method was invoked.
func (m *MockPlatform) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// FindProcess delegates to FindProcessFunc and records the call.
func (m *MockPlatform) FindProcess(ctx context.Context, name, cmdlineSubstr string) (Handle, bool, error) {
	m.record(PlatformCall{Method: "FindProcess"})
	if m.FindProcessFunc == nil {
		return Handle{}, false, nil
	}
	return m.FindProcessFunc(ctx, name, cmdlineSubstr)
}

// Start delegates to StartFunc and records the call.
func (m *MockPlatform) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	m.record(PlatformCall{Method: "Start", Spec: spec})
	if m.StartFunc == nil {
		return Handle{PID: 4242, Name: ServerName}, nil
	}
	return m.StartFunc(ctx, spec)
}

// Terminate delegates to TerminateFunc and records the call.
func (m *MockPlatform) Terminate(ctx context.Context, h Handle) error {
	m.record(PlatformCall{Method: "Terminate", Handle: h})
	if m.TerminateFunc == nil {
		return nil
	}
	return m.TerminateFunc(ctx, h)
}
