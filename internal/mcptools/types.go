package mcptools

import "github.com/dusk-indust/aiproto/internal/export"

// --- MCP Tool Types ---
// The MCP Go SDK generates JSON schemas from these structs and their
// jsonschema tags.

// GenerateInput is the input for the generate_deliverables MCP tool.
type GenerateInput struct {
	Prompt  string         `json:"prompt" jsonschema:"project idea or brief to generate deliverables from"`
	Types   []string       `json:"types,omitempty" jsonschema:"deliverable types to generate in order (default: problem_statement). Use \"all\" for every type"`
	Context map[string]any `json:"context,omitempty" jsonschema:"extra key/value context passed to every prompt"`
	Write   bool           `json:"write,omitempty" jsonschema:"also write the documents to the server's output directory"`
}

// GenerateOutput is the result of the generate_deliverables MCP tool.
type GenerateOutput struct {
	Run          export.RunExport `json:"run"`
	FilesWritten []string         `json:"filesWritten,omitempty"`
}

// ListDeliverablesInput is the input for the list_deliverables MCP tool.
type ListDeliverablesInput struct{}

// DeliverableInfo describes one deliverable type.
type DeliverableInfo struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ListDeliverablesOutput is the result of the list_deliverables MCP tool.
type ListDeliverablesOutput struct {
	Deliverables []DeliverableInfo `json:"deliverables"`
}

// ListModelsInput is the input for the list_models MCP tool.
type ListModelsInput struct{}

// ListModelsOutput is the result of the list_models MCP tool.
type ListModelsOutput struct {
	Models []string `json:"models"`
}

// ValidateTemplatesInput is the input for the validate_templates MCP tool.
type ValidateTemplatesInput struct{}

// TemplateStatus is the validation of one deliverable's template.
type TemplateStatus struct {
	Type    string `json:"type"`
	Valid   bool   `json:"valid"`
	Exists  bool   `json:"exists"`
	CanLoad bool   `json:"canLoad"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ValidateTemplatesOutput is the result of the validate_templates MCP tool.
type ValidateTemplatesOutput struct {
	Templates []TemplateStatus `json:"templates"`
	AllValid  bool             `json:"allValid"`
}

// ListRunsInput is the input for the list_runs MCP tool.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs, newest first (default: 20)"`
}

// RunSummary is a brief overview of one recorded run.
type RunSummary struct {
	ID           string   `json:"id"`
	StartedAt    string   `json:"startedAt"`
	Model        string   `json:"model,omitempty"`
	Seconds      float64  `json:"seconds"`
	TotalTokens  int      `json:"totalTokens"`
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	Deliverables []string `json:"deliverables"`
	Diagram      string   `json:"diagram"`
}

// ListRunsOutput is the result of the list_runs MCP tool.
type ListRunsOutput struct {
	Runs []RunSummary `json:"runs"`
}

// GetStatusInput is the input for the get_status MCP tool.
type GetStatusInput struct {
	Dir string `json:"dir,omitempty" jsonschema:"output directory to inspect (default: the server's output directory)"`
}

// GetStatusOutput is the result of the get_status MCP tool.
type GetStatusOutput struct {
	Dir       string   `json:"dir"`
	Completed []string `json:"completed"`
	Merged    bool     `json:"merged"`
	Next      string   `json:"next,omitempty"`
}
