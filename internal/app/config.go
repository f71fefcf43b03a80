package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	gh "github.com/rancher/cherry-pick-bot/internal/github"
	"github.com/rancher/cherry-pick-bot/internal/orchestrator"
)

const (
	defaultLabelPrefix        = "cherry-pick/"
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"
	defaultConflictStrategy   = orchestrator.ConflictStrategyFail
	defaultRequiredPermission = gh.PermissionWrite
	defaultListenAddr         = ":8080"
	defaultShutdownTimeout    = 30 * time.Second

	// ConfigPathEnv names the environment variable holding the optional YAML config path.
	ConfigPathEnv = "CHERRY_PICK_CONFIG"
)

var supportedConflictStrategies = map[string]struct{}{
	orchestrator.ConflictStrategyFail:          {},
	orchestrator.ConflictStrategyPlaceholderPR: {},
}

var supportedLogFormats = map[string]struct{}{"text": {}, "json": {}}

// Config captures runtime options. Values come from an optional YAML file, then GitHub
// Action inputs (INPUT_*) and CHERRY_PICK_* environment variables, then defaults.
type Config struct {
	GitHubToken      string   `yaml:"github_token" env:"INPUT_GITHUB_TOKEN"`
	GitHubBaseURL    string   `yaml:"github_base_url" env:"INPUT_GITHUB_BASE_URL"`
	GitHubUploadURL  string   `yaml:"github_upload_url" env:"INPUT_GITHUB_UPLOAD_URL"`
	LabelPrefix      string   `yaml:"label_prefix" env:"INPUT_LABEL_PREFIX"`
	DryRun           bool     `yaml:"dry_run" env:"INPUT_DRY_RUN"`
	Verbose          bool     `yaml:"verbose" env:"INPUT_VERBOSE"`
	LogLevel         string   `yaml:"log_level" env:"INPUT_LOG_LEVEL"`
	LogFormat        string   `yaml:"log_format" env:"INPUT_LOG_FORMAT"`
	ConflictStrategy string   `yaml:"conflict_strategy" env:"INPUT_CONFLICT_STRATEGY"`
	TargetBranches   []string `yaml:"target_branches"`

	// RequiredPermission gates /cherry-pick comment commands.
	RequiredPermission string `yaml:"required_permission" env:"CHERRY_PICK_REQUIRED_PERMISSION"`

	// Webhook server settings.
	WebhookSecret   string        `yaml:"webhook_secret" env:"CHERRY_PICK_WEBHOOK_SECRET"`
	ListenAddr      string        `yaml:"listen_addr" env:"CHERRY_PICK_LISTEN_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CHERRY_PICK_SHUTDOWN_TIMEOUT"`
}

// envOnly holds inputs that need extra handling before they land in Config.
type envOnly struct {
	TargetBranches string `env:"INPUT_TARGET_BRANCHES"`
	GitHubToken    string `env:"GITHUB_TOKEN"`
}

// LoadConfig loads configuration using the file named by CHERRY_PICK_CONFIG, if any.
func LoadConfig() (Config, error) {
	return LoadConfigFile(os.Getenv(ConfigPathEnv))
}

// LoadConfigFile reads the YAML file at path (skipped when empty), overlays the
// environment, applies defaults, and validates the result.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	var extra envOnly
	if err := env.Parse(&extra); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if raw := strings.TrimSpace(extra.TargetBranches); raw != "" {
		cfg.TargetBranches = parseBranchList(raw)
	}
	if strings.TrimSpace(cfg.GitHubToken) == "" {
		cfg.GitHubToken = extra.GitHubToken
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func (c *Config) normalize() {
	c.GitHubToken = strings.TrimSpace(c.GitHubToken)
	c.GitHubBaseURL = strings.TrimSpace(c.GitHubBaseURL)
	c.GitHubUploadURL = strings.TrimSpace(c.GitHubUploadURL)
	c.LabelPrefix = strings.TrimSpace(c.LabelPrefix)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.ConflictStrategy = strings.ToLower(strings.TrimSpace(c.ConflictStrategy))
	c.RequiredPermission = strings.ToLower(strings.TrimSpace(c.RequiredPermission))
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)

	if c.LabelPrefix == "" {
		c.LabelPrefix = defaultLabelPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = defaultConflictStrategy
	}
	if c.RequiredPermission == "" {
		c.RequiredPermission = defaultRequiredPermission
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (c Config) validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("github token is required (set INPUT_GITHUB_TOKEN or GITHUB_TOKEN)")
	}

	if (c.GitHubBaseURL == "") != (c.GitHubUploadURL == "") {
		return fmt.Errorf("INPUT_GITHUB_BASE_URL and INPUT_GITHUB_UPLOAD_URL must both be set for GitHub Enterprise")
	}

	if _, ok := supportedConflictStrategies[c.ConflictStrategy]; !ok {
		return fmt.Errorf("unsupported conflict strategy %q", c.ConflictStrategy)
	}

	if _, ok := supportedLogFormats[c.LogFormat]; !ok {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if c.DryRun && c.ConflictStrategy == orchestrator.ConflictStrategyPlaceholderPR {
		return fmt.Errorf("conflict strategy %q cannot be used when dry run is enabled", c.ConflictStrategy)
	}

	if !gh.ValidPermission(c.RequiredPermission) || c.RequiredPermission == gh.PermissionNone {
		return fmt.Errorf("unsupported required permission %q", c.RequiredPermission)
	}

	return nil
}

// ValidateServer checks the settings only the webhook server needs.
func (c Config) ValidateServer() error {
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return errors.New("webhook secret is required (set CHERRY_PICK_WEBHOOK_SECRET)")
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	return nil
}

func (c Config) orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		LabelPrefix:        c.LabelPrefix,
		ConflictStrategy:   c.ConflictStrategy,
		DryRun:             c.DryRun,
		TargetBranches:     c.TargetBranches,
		RequiredPermission: c.RequiredPermission,
	}
}

func parseBranchList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	branches := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			branches = append(branches, trimmed)
		}
	}

	return branches
}
