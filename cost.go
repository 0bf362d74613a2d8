package swarm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenOnce     sync.Once
	tokenEncoding *tiktoken.Tiktoken
)

// countTokens returns a token count using the cl100k_base encoding, falling
// back to a character heuristic when the encoding cannot be initialized.
func countTokens(text string) int {
	tokenOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoding = enc
		}
	})
	if tokenEncoding != nil {
		return len(tokenEncoding.Encode(text, nil, nil))
	}
	return estimateTokensFast(text)
}

// estimateTokensFast returns max(runes/4, word count) as a cheap token
// estimate for when tiktoken is unavailable.
func estimateTokensFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// CostEstimate breaks down the estimated spend for a completed task in USD.
type CostEstimate struct {
	// Model is the model the rates were resolved against.
	Model string `json:"model"`
	// PromptTokens counts tokens sent across all attempts.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens counts tokens received across all attempts.
	CompletionTokens int `json:"completion_tokens"`
	// PromptCost is the input spend in USD.
	PromptCost float64 `json:"prompt_cost"`
	// CompletionCost is the output spend in USD.
	CompletionCost float64 `json:"completion_cost"`
	// TotalCost is the combined spend in USD.
	TotalCost float64 `json:"total_cost"`
}

// modelRate holds USD prices per million tokens for models matching a prefix.
type modelRate struct {
	prefix    string
	promptUSD float64
	outputUSD float64
}

// modelRates is ordered most-specific first so prefix matching resolves
// gpt-4o-mini before gpt-4o and gpt-4o before gpt-4.
var modelRates = []modelRate{
	{prefix: "gpt-4o-mini", promptUSD: 0.15, outputUSD: 0.60},
	{prefix: "gpt-4o", promptUSD: 2.50, outputUSD: 10.00},
	{prefix: "gpt-4", promptUSD: 30.00, outputUSD: 60.00},
	{prefix: "o1", promptUSD: 15.00, outputUSD: 60.00},
}

// fallback for unknown models, roughly mid-tier pricing.
var defaultRate = modelRate{promptUSD: 1.00, outputUSD: 3.00}

func ratesFor(model string) modelRate {
	normalized := strings.ToLower(strings.TrimSpace(model))
	for _, rate := range modelRates {
		if strings.HasPrefix(normalized, rate.prefix) {
			return rate
		}
	}
	return defaultRate
}

// EstimateCost prices the given token counts against the model's published
// per-million-token rates.
func EstimateCost(model string, promptTokens, completionTokens int) *CostEstimate {
	rate := ratesFor(model)
	promptCost := float64(promptTokens) * rate.promptUSD / 1e6
	completionCost := float64(completionTokens) * rate.outputUSD / 1e6
	return &CostEstimate{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		PromptCost:       promptCost,
		CompletionCost:   completionCost,
		TotalCost:        promptCost + completionCost,
	}
}

// TaskComplexity buckets tasks by how demanding their prompt looks.
type TaskComplexity string

const (
	ComplexitySimple  TaskComplexity = "simple"
	ComplexityMedium  TaskComplexity = "medium"
	ComplexityComplex TaskComplexity = "complex"
)

// AnalyzeComplexity classifies a task by prompt size, kind and priority, and
// recommends the cheapest model that should still handle it well.
func AnalyzeComplexity(task *Task) (TaskComplexity, string) {
	tokens := countTokens(task.Description)

	complexity := ComplexityMedium
	switch {
	case tokens <= 50:
		complexity = ComplexitySimple
	case tokens > 300:
		complexity = ComplexityComplex
	}
	// Code prompts are short but their outputs are not.
	if task.Kind == KindCodeGeneration && complexity == ComplexitySimple {
		complexity = ComplexityMedium
	}
	if task.Priority == PriorityCritical {
		complexity = ComplexityComplex
	}

	switch complexity {
	case ComplexitySimple:
		return complexity, "gpt-4o-mini"
	case ComplexityComplex:
		return complexity, "gpt-4o"
	default:
		if task.Kind == KindCodeGeneration || task.Kind == KindForecasting {
			return complexity, "gpt-4o"
		}
		return complexity, "gpt-4o-mini"
	}
}
