// Package config loads aiproto settings from defaults, an optional YAML file,
// .env files and AIPROTO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/aiproto/internal/lmstudio"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

// EnvPrefix prefixes every environment override, e.g. AIPROTO_MODEL_NAME.
const EnvPrefix = "AIPROTO"

// FileName is the config file name searched for when no path is given.
const FileName = "aiproto.yaml"

// LMStudio holds connection settings for the completion server.
type LMStudio struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Model holds sampling settings.
type Model struct {
	Name        string  `mapstructure:"name" yaml:"name,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p"`
}

// Output holds where and how generated documents are written.
type Output struct {
	Format     string `mapstructure:"format" yaml:"format"`
	Directory  string `mapstructure:"directory" yaml:"directory"`
	Merge      bool   `mapstructure:"merge" yaml:"merge"`
	IncludeTOC bool   `mapstructure:"include_toc" yaml:"include_toc"`
}

// Deliverables holds generation defaults.
type Deliverables struct {
	DefaultTypes   []string `mapstructure:"default_types" yaml:"default_types"`
	CompletionMode string   `mapstructure:"completion_mode" yaml:"completion_mode"`
	MaxRetries     int      `mapstructure:"max_retries" yaml:"max_retries"`
	ChainOutputs   bool     `mapstructure:"chain_outputs" yaml:"chain_outputs"`
	ChainBudget    int      `mapstructure:"chain_token_budget" yaml:"chain_token_budget"`
	TemplateDir    string   `mapstructure:"template_dir" yaml:"template_dir,omitempty"`
}

// Logging mirrors logging.Options.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// Metrics configures the Prometheus listener used by serve.
type Metrics struct {
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// History configures the run history store. An empty path disables it.
type History struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// File is the full aiproto configuration.
type File struct {
	LMStudio     LMStudio     `mapstructure:"lm_studio" yaml:"lm_studio"`
	Model        Model        `mapstructure:"model" yaml:"model"`
	Output       Output       `mapstructure:"output" yaml:"output"`
	Deliverables Deliverables `mapstructure:"deliverables" yaml:"deliverables"`
	Logging      Logging      `mapstructure:"logging" yaml:"logging"`
	Metrics      Metrics      `mapstructure:"metrics" yaml:"metrics,omitempty"`
	History      History      `mapstructure:"history" yaml:"history,omitempty"`

	// Source is the config file that was read, if any.
	Source string `mapstructure:"-" yaml:"-"`
}

// Load reads configuration. When path is empty, aiproto.yaml is searched for
// in the working directory and the user config directory; a missing file is
// not an error. Environment variables override file values.
func Load(path string) (*File, error) {
	dotenv := []string{}
	if path != "" {
		dotenv = append(dotenv, filepath.Join(filepath.Dir(path), ".env"))
	}
	if err := LoadDotEnv(dotenv...); err != nil {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(UserDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read %s: %w", FileName, err)
			}
		}
	}

	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	f.Source = v.ConfigFileUsed()
	return f, nil
}

// Default returns the built-in configuration.
func Default() *File {
	oc := orchestrator.DefaultConfig()
	return &File{
		LMStudio: LMStudio{BaseURL: oc.BaseURL, Timeout: oc.RequestTimeout},
		Model: Model{
			MaxTokens:   oc.MaxTokens,
			Temperature: oc.Temperature,
			TopP:        oc.TopP,
		},
		Output: Output{
			Format:     "markdown",
			Directory:  "./output",
			Merge:      oc.MergeIntoSingleDocument,
			IncludeTOC: oc.IncludeTableOfContents,
		},
		Deliverables: Deliverables{
			DefaultTypes:   []string{"problem_statement"},
			CompletionMode: string(oc.Mode),
			MaxRetries:     oc.MaxRetriesPerDeliverable,
			ChainOutputs:   oc.ChainOutputs,
			ChainBudget:    oc.ChainTokenBudget,
		},
		Logging: Logging{Level: "warn", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("lm_studio.base_url", d.LMStudio.BaseURL)
	v.SetDefault("lm_studio.api_key", "")
	v.SetDefault("lm_studio.timeout", d.LMStudio.Timeout.String())

	v.SetDefault("model.name", "")
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.top_p", d.Model.TopP)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.merge", d.Output.Merge)
	v.SetDefault("output.include_toc", d.Output.IncludeTOC)

	v.SetDefault("deliverables.default_types", d.Deliverables.DefaultTypes)
	v.SetDefault("deliverables.completion_mode", d.Deliverables.CompletionMode)
	v.SetDefault("deliverables.max_retries", d.Deliverables.MaxRetries)
	v.SetDefault("deliverables.chain_outputs", d.Deliverables.ChainOutputs)
	v.SetDefault("deliverables.chain_token_budget", d.Deliverables.ChainBudget)
	v.SetDefault("deliverables.template_dir", "")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("history.path", "")
}

// Orchestration converts the file into engine settings.
func (f *File) Orchestration() (orchestrator.Config, error) {
	mode, err := orchestrator.ParseCompletionMode(f.Deliverables.CompletionMode)
	if err != nil {
		return orchestrator.Config{}, err
	}
	return orchestrator.Config{
		BaseURL:                  f.LMStudio.BaseURL,
		APIKey:                   f.LMStudio.APIKey,
		Model:                    f.Model.Name,
		MaxTokens:                f.Model.MaxTokens,
		Temperature:              f.Model.Temperature,
		TopP:                     f.Model.TopP,
		Mode:                     mode,
		MaxRetriesPerDeliverable: f.Deliverables.MaxRetries,
		RequestTimeout:           f.LMStudio.Timeout,
		MergeIntoSingleDocument:  f.Output.Merge,
		IncludeTableOfContents:   f.Output.IncludeTOC,
		ChainOutputs:             f.Deliverables.ChainOutputs,
		ChainTokenBudget:         f.Deliverables.ChainBudget,
	}, nil
}

// Validate checks settings that the engine does not own.
func (f *File) Validate() error {
	var errs []error
	switch f.Output.Format {
	case "markdown", "json":
	default:
		errs = append(errs, fmt.Errorf("output format must be markdown or json, got %q", f.Output.Format))
	}
	oc, err := f.Orchestration()
	if err != nil {
		errs = append(errs, err)
	} else if err := oc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes f as YAML to path, creating parent directories.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	// 0600: the file may hold an API key.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// UserDir returns $XDG_CONFIG_HOME/aiproto, falling back to ~/.config/aiproto.
func UserDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aiproto")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "aiproto")
	}
	return filepath.Join(home, ".config", "aiproto")
}

// LMStudioOptions returns client options for the connection settings.
func (f *File) LMStudioOptions() []lmstudio.ClientOption {
	opts := []lmstudio.ClientOption{lmstudio.WithTimeout(f.LMStudio.Timeout)}
	if f.LMStudio.APIKey != "" {
		opts = append(opts, lmstudio.WithAPIKey(f.LMStudio.APIKey))
	}
	return opts
}
