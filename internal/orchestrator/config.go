package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/aiproto/internal/lmstudio"
)

// CompletionMode selects the execution strategy for a run.
type CompletionMode string

const (
	// ModeSequential generates deliverables one after another.
	ModeSequential CompletionMode = "sequential"

	// ModeBatch is reserved for concurrent generation and currently runs
	// sequentially.
	ModeBatch CompletionMode = "batch"

	// ModeStreaming is reserved for streamed completions and currently runs
	// sequentially.
	ModeStreaming CompletionMode = "streaming"
)

// ParseCompletionMode maps a name onto a CompletionMode.
func ParseCompletionMode(s string) (CompletionMode, error) {
	switch m := CompletionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSequential, ModeBatch, ModeStreaming:
		return m, nil
	case "":
		return ModeSequential, nil
	default:
		return "", fmt.Errorf("orchestrator: unknown completion mode %q", s)
	}
}

// Config holds the settings for an Engine. It is copied into every Result.
type Config struct {
	// BaseURL is the LM Studio API root.
	BaseURL string `json:"base_url"`

	// APIKey is sent as a bearer token when set.
	APIKey string `json:"-"`

	// Model is the preferred model. Empty selects the first available.
	Model string `json:"model,omitempty"`

	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`

	Mode CompletionMode `json:"completion_mode"`

	// MaxRetriesPerDeliverable is the number of retries after the first
	// attempt.
	MaxRetriesPerDeliverable int `json:"max_retries_per_deliverable"`

	// RequestTimeout bounds every completion call.
	RequestTimeout time.Duration `json:"request_timeout"`

	MergeIntoSingleDocument bool `json:"merge_into_single_document"`
	IncludeTableOfContents  bool `json:"include_table_of_contents"`

	// ChainOutputs adds prior successful deliverables to later prompts.
	ChainOutputs bool `json:"chain_outputs"`

	// ChainTokenBudget caps the estimated tokens of chained deliverables
	// per prompt. The oldest outputs are dropped first.
	ChainTokenBudget int `json:"chain_token_budget"`
}

// DefaultChainTokenBudget leaves room for the prompt and a full completion
// in an 8k context window.
const DefaultChainTokenBudget = 4096

// MaxRetries bounds MaxRetriesPerDeliverable.
const MaxRetries = 10

// DefaultConfig returns the stock settings for a local LM Studio server.
func DefaultConfig() Config {
	return Config{
		BaseURL:                  lmstudio.DefaultBaseURL,
		MaxTokens:                2048,
		Temperature:              0.7,
		TopP:                     0.9,
		Mode:                     ModeSequential,
		MaxRetriesPerDeliverable: 3,
		RequestTimeout:           60 * time.Second,
		MergeIntoSingleDocument:  true,
		IncludeTableOfContents:   true,
		ChainTokenBudget:         DefaultChainTokenBudget,
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %g", c.Temperature))
	}
	if c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top-p must be within (0, 1], got %g", c.TopP))
	}
	if c.MaxRetriesPerDeliverable < 0 || c.MaxRetriesPerDeliverable > MaxRetries {
		errs = append(errs, fmt.Errorf("retries must be within [0, %d], got %d", MaxRetries, c.MaxRetriesPerDeliverable))
	}
	if c.ChainOutputs && c.ChainTokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("chain token budget must be positive, got %d", c.ChainTokenBudget))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if _, err := ParseCompletionMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("orchestrator: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
