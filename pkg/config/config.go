// Package config loads the bot configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/coursebot/pkg/browser"
	"github.com/entrhq/coursebot/pkg/site"
	"github.com/entrhq/coursebot/pkg/timing"
)

// DefaultPath is read when no config file is given.
const DefaultPath = "conf.yaml"

// OCR providers.
const (
	ProviderChaojiying = "chaojiying"
	ProviderOpenAI     = "openai"
)

// Config is the whole bot configuration.
type Config struct {
	Auth Credentials `yaml:"auth"`
	OCR  OCR         `yaml:"ocr"`

	// Semester is the academic term, for example 2026-2027-1.
	Semester string `yaml:"semester" validate:"required"`

	// DegreeTrack selects the degree-course search page.
	DegreeTrack bool `yaml:"degree_track"`

	Courses Courses `yaml:"courses" validate:"min=1"`

	// SubmitMode is bulk or single.
	SubmitMode string   `yaml:"submit_mode" validate:"oneof=bulk single"`
	Classify   Classify `yaml:"classify"`

	Timings timing.Timings `yaml:"timings"`

	// IgnoreResponses lists URL globs that never count as a dropped
	// session. Leaving the key out keeps the built-in static asset list; an
	// explicit empty list turns the filter off.
	IgnoreResponses []string `yaml:"ignore_responses"`

	Browser    browser.Options `yaml:"browser"`
	ResultsDir string          `yaml:"results_dir" validate:"required"`
	Log        Log             `yaml:"log"`
	Metrics    Metrics         `yaml:"metrics"`
	Site       site.Endpoints  `yaml:"site"`
}

// Credentials are the registration system account.
type Credentials struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
}

// OCR selects and configures the captcha recognizer.
type OCR struct {
	Provider string `yaml:"provider" validate:"oneof=chaojiying openai"`

	// Chaojiying account.
	User     string `yaml:"user" validate:"required_if=Provider chaojiying"`
	Pass2    string `yaml:"pass2" validate:"required_if=Provider chaojiying"`
	SoftID   string `yaml:"softid" validate:"required_if=Provider chaojiying"`
	CodeType string `yaml:"codetype"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// OpenAI-compatible vision model.
	APIKey  string `yaml:"api_key" validate:"required_if=Provider openai"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model"`
}

// Classify configures how confirmation dialogs are read.
type Classify struct {
	Mode     string `yaml:"mode" validate:"oneof=contains template omits"`
	Template string `yaml:"template" validate:"required_if=Mode template"`
}

// Log configures the log file and console output.
type Log struct {
	Path    string `yaml:"path"`
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	Console bool   `yaml:"console"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	// Listen is host:port. Empty disables the endpoint.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// Default returns the configuration every file is decoded over.
func Default() *Config {
	return &Config{
		OCR: OCR{
			Provider: ProviderChaojiying,
			CodeType: "1902",
		},
		SubmitMode: "bulk",
		Classify:   Classify{Mode: "contains"},
		Timings:    timing.Defaults(),
		Browser:    browser.DefaultOptions(),
		ResultsDir: "results",
		Log: Log{
			Path:    "qk.log",
			Level:   "info",
			Console: true,
		},
		Site: site.Default(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables that override secrets from the file.
const (
	EnvUsername   = "COURSEBOT_USERNAME"
	EnvPassword   = "COURSEBOT_PASSWORD"
	EnvOCRUser    = "COURSEBOT_OCR_USER"
	EnvOCRPass    = "COURSEBOT_OCR_PASS"
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvOpenAIBase = "OPENAI_BASE_URL"
)

// ApplyEnv overrides secrets with the non-empty variables lookup returns.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Auth.Username, EnvUsername)
	set(&c.Auth.Password, EnvPassword)
	set(&c.OCR.User, EnvOCRUser)
	set(&c.OCR.Pass2, EnvOCRPass)
	set(&c.OCR.APIKey, EnvOpenAIKey)
	set(&c.OCR.BaseURL, EnvOpenAIBase)
}
