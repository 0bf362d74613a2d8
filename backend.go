package swarm

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Provider names for BackendConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderMock   = "mock"
)

// Request carries everything a backend needs to produce one artifact.
// The prompt accumulates corrective guidance across refine cycles.
type Request struct {
	TaskID    string
	Kind      TaskKind
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// refine folds a rejection or failure reason into the prompt so the next
// attempt can address it.
func (r *Request) refine(reason string, attempt int) {
	r.Prompt = fmt.Sprintf("%s\n\n[revision %d] The previous attempt was not accepted: %s\nAddress this and respond again.",
		r.Prompt, attempt, reason)
}

// Artifact is the product of one generate call.
type Artifact struct {
	// Content is the generated text or code payload
	Content string
	// Model names the model that produced the content
	Model string
	// Confidence is the backend's self-reported score in [0,1]
	Confidence float64
	// SelfAssessed marks Confidence as meaningful; when false the
	// verifier substitutes a neutral value
	SelfAssessed bool
	// Tokens is the output token count if the backend reports one
	Tokens int
}

// BackendMetadata describes a backend's static capabilities.
type BackendMetadata struct {
	Identifier           string
	Model                string
	SupportsVerification bool
}

// Backend is the uniform capability interface over heterogeneous generation
// services. Generate must honor the context deadline rather than blocking
// indefinitely. Implementations must be safe for concurrent invocation.
type Backend interface {
	// Generate produces one artifact for the request.
	Generate(ctx context.Context, req *Request) (*Artifact, error)

	// HealthCheck reports whether the backend can currently serve requests.
	HealthCheck(ctx context.Context) bool

	// Metadata returns the backend's static description.
	Metadata() BackendMetadata
}

// BackendConfig holds per-backend connection parameters. Credential contents
// are opaque to the orchestrator; they are handed to the backend at
// construction and never inspected.
type BackendConfig struct {
	// Provider selects the backend implementation: openai, azure, or mock
	Provider string `koanf:"provider" yaml:"provider"`
	// APIKey is the credential reference for the service
	APIKey string `koanf:"api_key" yaml:"api_key"`
	// BaseURL overrides the service endpoint when set
	BaseURL string `koanf:"base_url" yaml:"base_url,omitempty"`
	// APIVersion selects the Azure API version
	APIVersion string `koanf:"api_version" yaml:"api_version,omitempty"`
	// Model is the default model for requests without an override
	Model string `koanf:"model" yaml:"model"`
	// TimeoutSeconds bounds each generate call
	TimeoutSeconds int `koanf:"timeout_seconds" yaml:"timeout_seconds"`
	// MaxAttempts bounds the generate-verify-refine loop per task
	MaxAttempts int `koanf:"max_attempts" yaml:"max_attempts"`
	// EnableVerification blends the backend's self-reported confidence into
	// quality scoring; when false a neutral 0.5 is used instead
	EnableVerification bool `koanf:"enable_verification" yaml:"enable_verification"`
}

// DefaultBackendConfig returns the standard per-backend policy.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Provider:           ProviderOpenAI,
		Model:              "gpt-4o",
		TimeoutSeconds:     60,
		MaxAttempts:        3,
		EnableVerification: true,
	}
}

// applyDefaults fills zero-valued policy fields.
func (c *BackendConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
}

// Validate checks the connection parameters.
func (c *BackendConfig) Validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.Provider != ProviderMock && c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Timeout returns the per-call generate deadline.
func (c *BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NewBackend constructs a backend instance from its configuration.
func NewBackend(identifier string, cfg BackendConfig) (Backend, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI, ProviderAzure:
		return NewOpenAIBackend(identifier, cfg)
	case ProviderMock:
		return NewMockBackend(identifier), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// registry maps backend identifiers to instances. It is built once during
// Initialize and never mutated afterwards, so lookups need no locking.
type registry struct {
	order    []string
	backends map[string]Backend
	configs  map[string]BackendConfig
}

// newRegistry constructs all backends from their configurations, in sorted
// identifier order so the fallback choice is deterministic. Pre-built
// instances are registered as-is and shadow a configured backend with the
// same identifier; their config entry, when present, still supplies the
// attempt and timeout knobs.
func newRegistry(configs map[string]BackendConfig, prebuilt map[string]Backend) (*registry, error) {
	if len(configs) == 0 && len(prebuilt) == 0 {
		return nil, ErrNoBackends
	}

	seen := make(map[string]struct{}, len(configs)+len(prebuilt))
	ids := make([]string, 0, len(configs)+len(prebuilt))
	for id := range configs {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range prebuilt {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	r := &registry{
		order:    ids,
		backends: make(map[string]Backend, len(ids)),
		configs:  make(map[string]BackendConfig, len(ids)),
	}
	for _, id := range ids {
		cfg, hasConfig := configs[id]
		if !hasConfig {
			cfg = DefaultBackendConfig()
			cfg.Provider = ProviderMock
		}
		cfg.applyDefaults()
		if backend, ok := prebuilt[id]; ok {
			r.backends[id] = backend
			r.configs[id] = cfg
			continue
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("backend %s: %w", id, err)
		}
		backend, err := NewBackend(id, cfg)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", id, err)
		}
		r.backends[id] = backend
		r.configs[id] = cfg
	}
	return r, nil
}

func (r *registry) get(id string) (Backend, bool) {
	b, ok := r.backends[id]
	return b, ok
}

func (r *registry) config(id string) BackendConfig {
	return r.configs[id]
}

func (r *registry) first() string {
	return r.order[0]
}

func (r *registry) ids() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
