package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockOutcome scripts one Generate call on a MockBackend.
type MockOutcome struct {
	Content    string
	Confidence float64
	Err        error
}

// MockBackend is a scripted backend for tests, demos, and the CLI selftest.
// Outcomes are served in order and the last one repeats once the script is
// exhausted. Without a script it produces a kind-appropriate canned artifact.
//
// The backend tracks its peak number of concurrent Generate calls so tests
// can assert the orchestrator's admission gate.
type MockBackend struct {
	id      string
	latency time.Duration
	healthy bool

	mu          sync.Mutex
	script      []MockOutcome
	next        int
	calls       int
	prompts     []string
	inFlight    int
	maxInFlight int
}

// NewMockBackend creates a healthy mock backend with no latency.
func NewMockBackend(identifier string) *MockBackend {
	return &MockBackend{id: identifier, healthy: true}
}

// WithLatency makes every Generate call take at least d and returns the
// backend for chaining.
func (m *MockBackend) WithLatency(d time.Duration) *MockBackend {
	m.latency = d
	return m
}

// WithHealthy sets the health check result and returns the backend for chaining.
func (m *MockBackend) WithHealthy(healthy bool) *MockBackend {
	m.healthy = healthy
	return m
}

// AddOutcome appends a successful scripted artifact.
func (m *MockBackend) AddOutcome(content string, confidence float64) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, MockOutcome{Content: content, Confidence: confidence})
	return m
}

// AddError appends a scripted failure.
func (m *MockBackend) AddError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, MockOutcome{Err: err})
	return m
}

// Generate implements Backend.
func (m *MockBackend) Generate(ctx context.Context, req *Request) (*Artifact, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	outcome := m.takeOutcome(req)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if outcome.Err != nil {
		return nil, &GenerationError{Backend: m.id, Err: outcome.Err}
	}
	return &Artifact{
		Content:      outcome.Content,
		Model:        "mock",
		Confidence:   outcome.Confidence,
		SelfAssessed: true,
	}, nil
}

// takeOutcome returns the next scripted outcome, or a canned artifact for
// the request's kind when no script is set. Callers must hold m.mu.
func (m *MockBackend) takeOutcome(req *Request) MockOutcome {
	if len(m.script) == 0 {
		return cannedOutcome(req.Kind)
	}
	outcome := m.script[m.next]
	if m.next < len(m.script)-1 {
		m.next++
	}
	return outcome
}

func cannedOutcome(kind TaskKind) MockOutcome {
	switch kind {
	case KindCodeGeneration:
		return MockOutcome{
			Content:    "```go\nfunc generated() string {\n\treturn \"ok\"\n}\n```",
			Confidence: 0.9,
		}
	case KindForecasting:
		return MockOutcome{
			Content:    "Projected values: 112.4, 118.9, 124.1 (next three periods)",
			Confidence: 0.9,
		}
	default:
		return MockOutcome{Content: "mock artifact", Confidence: 0.9}
	}
}

// HealthCheck implements Backend.
func (m *MockBackend) HealthCheck(ctx context.Context) bool {
	return m.healthy
}

// Metadata implements Backend.
func (m *MockBackend) Metadata() BackendMetadata {
	return BackendMetadata{
		Identifier:           m.id,
		Model:                "mock",
		SupportsVerification: true,
	}
}

// Calls returns how many Generate calls the backend has served.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received by Generate, in call order.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// MaxInFlight returns the peak number of concurrent Generate calls observed.
func (m *MockBackend) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// String describes the backend for debug output.
func (m *MockBackend) String() string {
	return fmt.Sprintf("mock backend %s (%d calls)", m.id, m.Calls())
}
