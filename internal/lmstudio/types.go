package lmstudio

// Model is one entry of the /models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type modelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// CompletionRequest is the body of POST /completions.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

// Usage is the token accounting reported with a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one generated alternative.
type Choice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// CompletionResponse is the body returned by POST /completions.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Text returns the first choice's text, or "" when there are no choices.
func (r *CompletionResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Text
}

// HealthStatus is the coarse server state.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is the result of a health check.
type Health struct {
	Status      HealthStatus `json:"status"`
	BaseURL     string       `json:"base_url"`
	ModelsCount int          `json:"models_count"`
	Error       string       `json:"error,omitempty"`
	ErrorKind   ErrorKind    `json:"error_type,omitempty"`
}

// Healthy reports whether Status is StatusHealthy.
func (h Health) Healthy() bool {
	return h.Status == StatusHealthy
}
