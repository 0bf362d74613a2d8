package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// OpenAIClient is the slice of the OpenAI API the backend needs. Keeping it
// as an interface lets tests substitute a scripted client.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// openAIClientWrapper wraps the OpenAI client
type openAIClientWrapper struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI client wrapper
func NewOpenAIClient(apiKey string) OpenAIClient {
	if apiKey == "" {
		return nil
	}

	return &openAIClientWrapper{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// NewOpenAIClientWithBaseURL creates a new OpenAI client wrapper with a custom base URL
func NewOpenAIClientWithBaseURL(apiKey string, baseURL string) OpenAIClient {
	if apiKey == "" {
		return nil
	}

	if baseURL == "" {
		return &openAIClientWrapper{
			client: openai.NewClient(option.WithAPIKey(apiKey)),
		}
	}

	return &openAIClientWrapper{
		client: openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
	}
}

// NewAzureOpenAIClient creates a new OpenAI client wrapper for Azure
func NewAzureOpenAIClient(apiKey, endpoint, apiVersion string) OpenAIClient {
	if apiKey == "" || endpoint == "" {
		return nil
	}
	if apiVersion == "" {
		apiVersion = "2024-06-01"
	}

	return &openAIClientWrapper{
		client: openai.NewClient(
			azure.WithEndpoint(endpoint, apiVersion),
			azure.WithAPIKey(apiKey),
		),
	}
}

// CreateChatCompletion implements OpenAIClient interface
func (c *openAIClientWrapper) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	return completion, nil
}

// OpenAIBackend adapts an OpenAI-compatible chat completion service to the
// Backend interface. One instance serves concurrent tasks; the underlying
// client carries no per-call mutable state.
type OpenAIBackend struct {
	id     string
	client OpenAIClient
	config BackendConfig
}

// NewOpenAIBackend builds a backend for the OpenAI or Azure OpenAI service
// from its connection parameters.
func NewOpenAIBackend(identifier string, cfg BackendConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client OpenAIClient
	switch {
	case cfg.Provider == ProviderAzure:
		client = NewAzureOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.APIVersion)
	case cfg.BaseURL != "":
		client = NewOpenAIClientWithBaseURL(cfg.APIKey, cfg.BaseURL)
	default:
		client = NewOpenAIClient(cfg.APIKey)
	}
	if client == nil {
		return nil, fmt.Errorf("backend %s: client construction failed", identifier)
	}

	return &OpenAIBackend{id: identifier, client: client, config: cfg}, nil
}

// Generate implements Backend.
func (b *OpenAIBackend) Generate(ctx context.Context, req *Request) (*Artifact, error) {
	model := req.Model
	if model == "" {
		model = b.config.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Model: openai.ChatModel(model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := b.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, &GenerationError{Backend: b.id, Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &GenerationError{Backend: b.id, Err: errors.New("no choices in response")}
	}

	choice := completion.Choices[0]
	// A truncated or filtered completion is worth less than a clean stop.
	confidence := 0.9
	if choice.FinishReason != "stop" {
		confidence = 0.6
	}

	return &Artifact{
		Content:      choice.Message.Content,
		Model:        model,
		Confidence:   confidence,
		SelfAssessed: b.config.EnableVerification,
		Tokens:       int(completion.Usage.CompletionTokens),
	}, nil
}

// HealthCheck implements Backend with a minimal one-token completion.
func (b *OpenAIBackend) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		Model:     openai.ChatModel(b.config.Model),
		MaxTokens: openai.Int(1),
	}
	_, err := b.client.CreateChatCompletion(ctx, params)
	return err == nil
}

// Metadata implements Backend.
func (b *OpenAIBackend) Metadata() BackendMetadata {
	return BackendMetadata{
		Identifier:           b.id,
		Model:                b.config.Model,
		SupportsVerification: b.config.EnableVerification,
	}
}
