// Package config loads genflow settings from defaults, an optional YAML
// file, the environment and caller overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"genflow/internal/agent"
	"genflow/internal/knowledge"
	"genflow/internal/observability"
	"genflow/internal/orchestrator"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	// DefaultConfigDir is created under the user's home directory.
	DefaultConfigDir = ".genflow"
	// DefaultConfigFile is looked up inside DefaultConfigDir.
	DefaultConfigFile = "config.yaml"
	// DefaultGuidelinesPath is the repository rules document.
	DefaultGuidelinesPath = "CLAUDE.md"
)

// CodegenConfig addresses the remote code generation agent.
type CodegenConfig struct {
	BaseURL string
	OrgID   string
	Token   string
	Timeout time.Duration
}

// Configured reports whether both credentials are present.
func (c CodegenConfig) Configured() bool {
	return c.OrgID != "" && c.Token != ""
}

// KnowledgeConfig addresses the R2R knowledge service.
type KnowledgeConfig struct {
	BaseURL      string
	APIKey       string
	ShortTimeout time.Duration
	LongTimeout  time.Duration
}

// Configured reports whether the knowledge service can be reached.
func (c KnowledgeConfig) Configured() bool {
	return c.BaseURL != ""
}

// RunnerConfig controls the poll loop.
type RunnerConfig struct {
	PollInterval  time.Duration
	MaxWait       time.Duration
	TimeoutPolicy orchestrator.TimeoutPolicy
}

// HTTPConfig controls the HTTP API listener.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

// Config captures every user-configurable setting.
type Config struct {
	Codegen        CodegenConfig
	Knowledge      KnowledgeConfig
	Runner         RunnerConfig
	GuidelinesPath string
	// DataDir holds the run ledger. An empty value with LedgerEnabled
	// resolves to ~/.genflow.
	DataDir       string
	LedgerEnabled bool
	OutputDir     string
	HTTP          HTTPConfig
	Observability observability.Config
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	path     string
	loadedAt time.Time
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// Path returns the config file that was read, or "" when none was found.
func (m Metadata) Path() string {
	return m.path
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Overrides conveys caller-specified values that should win over env/file sources.
type Overrides struct {
	CodegenBaseURL   *string
	CodegenOrgID     *string
	CodegenToken     *string
	KnowledgeBaseURL *string
	KnowledgeAPIKey  *string
	PollInterval     *time.Duration
	MaxWait          *time.Duration
	TimeoutPolicy    *string
	GuidelinesPath   *string
	DataDir          *string
	LedgerEnabled    *bool
	OutputDir        *string
	HTTPAddr         *string
	LogLevel         *string
	LogFormat        *string
	TracingEnabled   *bool
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific
// file. A missing explicit file is an error.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// envAliases lists older variable names still honoured.
var envAliases = map[string][]string{
	"R2R_API_KEY":  {"API_KEY"},
	"R2R_BASE_URL": {"R2R_URL"},
}

// AliasEnvLookup wraps an EnvLookup with additional alias keys.
func AliasEnvLookup(base EnvLookup, aliases map[string][]string) EnvLookup {
	if base == nil {
		base = DefaultEnvLookup
	}
	return func(key string) (string, bool) {
		if value, ok := base(key); ok && value != "" {
			return value, true
		}
		for _, alias := range aliases[key] {
			if value, ok := base(alias); ok && value != "" {
				return value, true
			}
		}
		return "", false
	}
}

// Defaults returns the configuration used before any source is applied.
func Defaults() Config {
	return Config{
		Codegen: CodegenConfig{
			BaseURL: agent.DefaultBaseURL,
			Timeout: agent.DefaultTimeout,
		},
		Knowledge: KnowledgeConfig{
			ShortTimeout: knowledge.DefaultShortTimeout,
			LongTimeout:  knowledge.DefaultLongTimeout,
		},
		Runner: RunnerConfig{
			PollInterval:  orchestrator.DefaultPollInterval,
			MaxWait:       orchestrator.DefaultMaxWait,
			TimeoutPolicy: orchestrator.KeepLastStatus,
		},
		GuidelinesPath: DefaultGuidelinesPath,
		LedgerEnabled:  true,
		OutputDir:      ".",
		HTTP:           HTTPConfig{Addr: "127.0.0.1:8080"},
		Observability:  observability.DefaultConfig(),
	}
}

// Load constructs the configuration by merging defaults, file, env and overrides.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.envLookup = AliasEnvLookup(options.envLookup, envAliases)

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	cfg := Defaults()

	if err := applyFile(&cfg, &meta, options); err != nil {
		return Config{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options.envLookup); err != nil {
		return Config{}, Metadata{}, err
	}
	if err := applyOverrides(&cfg, &meta, options.overrides); err != nil {
		return Config{}, Metadata{}, err
	}

	if cfg.LedgerEnabled && cfg.DataDir == "" {
		if home, err := options.homeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, DefaultConfigDir)
		} else {
			cfg.LedgerEnabled = false
		}
	}
	return cfg, meta, nil
}

type fileConfig struct {
	Codegen struct {
		BaseURL  string `yaml:"base_url"`
		OrgID    string `yaml:"org_id"`
		APIToken string `yaml:"api_token"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"codegen"`
	Knowledge struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		ShortTimeout string `yaml:"short_timeout"`
		LongTimeout  string `yaml:"long_timeout"`
	} `yaml:"knowledge"`
	Runner struct {
		PollInterval  string `yaml:"poll_interval"`
		MaxWait       string `yaml:"max_wait"`
		TimeoutPolicy string `yaml:"timeout_policy"`
	} `yaml:"runner"`
	GuidelinesPath string `yaml:"guidelines_path"`
	DataDir        string `yaml:"data_dir"`
	Ledger         struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"ledger"`
	OutputDir string `yaml:"output_dir"`
	HTTP      struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Observability observability.FileConfig `yaml:"observability"`
}

func applyFile(cfg *Config, meta *Metadata, opts loadOptions) error {
	configPath := opts.configPath
	explicit := configPath != ""
	if !explicit {
		home, err := opts.homeDir()
		if err != nil {
			return nil
		}
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	data, err := opts.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", configPath, err)
	}
	meta.path = configPath

	set := func(field string, dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
			meta.sources[field] = SourceFile
		}
	}
	setDuration := func(field string, dst *time.Duration, value string) error {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		d, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", configPath, field, err)
		}
		*dst = d
		meta.sources[field] = SourceFile
		return nil
	}

	set("codegen.base_url", &cfg.Codegen.BaseURL, parsed.Codegen.BaseURL)
	set("codegen.org_id", &cfg.Codegen.OrgID, parsed.Codegen.OrgID)
	set("codegen.api_token", &cfg.Codegen.Token, parsed.Codegen.APIToken)
	set("knowledge.base_url", &cfg.Knowledge.BaseURL, parsed.Knowledge.BaseURL)
	set("knowledge.api_key", &cfg.Knowledge.APIKey, parsed.Knowledge.APIKey)
	set("guidelines_path", &cfg.GuidelinesPath, parsed.GuidelinesPath)
	set("data_dir", &cfg.DataDir, parsed.DataDir)
	set("output_dir", &cfg.OutputDir, parsed.OutputDir)
	set("http.addr", &cfg.HTTP.Addr, parsed.HTTP.Addr)

	for _, d := range []struct {
		field string
		dst   *time.Duration
		value string
	}{
		{"codegen.timeout", &cfg.Codegen.Timeout, parsed.Codegen.Timeout},
		{"knowledge.short_timeout", &cfg.Knowledge.ShortTimeout, parsed.Knowledge.ShortTimeout},
		{"knowledge.long_timeout", &cfg.Knowledge.LongTimeout, parsed.Knowledge.LongTimeout},
		{"runner.poll_interval", &cfg.Runner.PollInterval, parsed.Runner.PollInterval},
		{"runner.max_wait", &cfg.Runner.MaxWait, parsed.Runner.MaxWait},
	} {
		if err := setDuration(d.field, d.dst, d.value); err != nil {
			return err
		}
	}

	if parsed.Runner.TimeoutPolicy != "" {
		policy, err := orchestrator.ParseTimeoutPolicy(parsed.Runner.TimeoutPolicy)
		if err != nil {
			return fmt.Errorf("config file %s: runner.timeout_policy: %w", configPath, err)
		}
		cfg.Runner.TimeoutPolicy = policy
		meta.sources["runner.timeout_policy"] = SourceFile
	}
	if parsed.Ledger.Enabled != nil {
		cfg.LedgerEnabled = *parsed.Ledger.Enabled
		meta.sources["ledger.enabled"] = SourceFile
	}
	if len(parsed.HTTP.AllowedOrigins) > 0 {
		cfg.HTTP.AllowedOrigins = append([]string(nil), parsed.HTTP.AllowedOrigins...)
		meta.sources["http.allowed_origins"] = SourceFile
	}
	cfg.Observability = observability.Merge(cfg.Observability, parsed.Observability)
	return nil
}

func applyEnv(cfg *Config, meta *Metadata, lookup EnvLookup) error {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	set := func(key, field string, dst *string) {
		if value, ok := get(key); ok {
			*dst = value
			meta.sources[field] = SourceEnv
		}
	}

	set("CODEGEN_BASE_URL", "codegen.base_url", &cfg.Codegen.BaseURL)
	set("CODEGEN_ORG_ID", "codegen.org_id", &cfg.Codegen.OrgID)
	set("CODEGEN_API_TOKEN", "codegen.api_token", &cfg.Codegen.Token)
	set("R2R_BASE_URL", "knowledge.base_url", &cfg.Knowledge.BaseURL)
	set("R2R_API_KEY", "knowledge.api_key", &cfg.Knowledge.APIKey)
	set("GENFLOW_GUIDELINES_PATH", "guidelines_path", &cfg.GuidelinesPath)
	set("GENFLOW_DATA_DIR", "data_dir", &cfg.DataDir)
	set("GENFLOW_OUTPUT_DIR", "output_dir", &cfg.OutputDir)
	set("GENFLOW_HTTP_ADDR", "http.addr", &cfg.HTTP.Addr)
	set("GENFLOW_LOG_LEVEL", "observability.logging.level", &cfg.Observability.Logging.Level)
	set("GENFLOW_LOG_FORMAT", "observability.logging.format", &cfg.Observability.Logging.Format)

	for _, d := range []struct {
		key, field string
		dst        *time.Duration
	}{
		{"GENFLOW_POLL_INTERVAL", "runner.poll_interval", &cfg.Runner.PollInterval},
		{"GENFLOW_MAX_WAIT", "runner.max_wait", &cfg.Runner.MaxWait},
	} {
		value, ok := get(d.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
		meta.sources[d.field] = SourceEnv
	}

	if value, ok := get("GENFLOW_TIMEOUT_POLICY"); ok {
		policy, err := orchestrator.ParseTimeoutPolicy(value)
		if err != nil {
			return fmt.Errorf("GENFLOW_TIMEOUT_POLICY: %w", err)
		}
		cfg.Runner.TimeoutPolicy = policy
		meta.sources["runner.timeout_policy"] = SourceEnv
	}
	for _, b := range []struct {
		key, field string
		dst        *bool
	}{
		{"GENFLOW_LEDGER", "ledger.enabled", &cfg.LedgerEnabled},
		{"GENFLOW_TRACING", "observability.tracing.enabled", &cfg.Observability.Tracing.Enabled},
	} {
		value, ok := get(b.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = parsed
		meta.sources[b.field] = SourceEnv
	}
	if value, ok := get("GENFLOW_HTTP_ALLOWED_ORIGINS"); ok {
		cfg.HTTP.AllowedOrigins = splitList(value)
		meta.sources["http.allowed_origins"] = SourceEnv
	}
	return nil
}

func applyOverrides(cfg *Config, meta *Metadata, o Overrides) error {
	str := func(field string, dst *string, value *string) {
		if value != nil {
			*dst = strings.TrimSpace(*value)
			meta.sources[field] = SourceOverride
		}
	}
	str("codegen.base_url", &cfg.Codegen.BaseURL, o.CodegenBaseURL)
	str("codegen.org_id", &cfg.Codegen.OrgID, o.CodegenOrgID)
	str("codegen.api_token", &cfg.Codegen.Token, o.CodegenToken)
	str("knowledge.base_url", &cfg.Knowledge.BaseURL, o.KnowledgeBaseURL)
	str("knowledge.api_key", &cfg.Knowledge.APIKey, o.KnowledgeAPIKey)
	str("guidelines_path", &cfg.GuidelinesPath, o.GuidelinesPath)
	str("data_dir", &cfg.DataDir, o.DataDir)
	str("output_dir", &cfg.OutputDir, o.OutputDir)
	str("http.addr", &cfg.HTTP.Addr, o.HTTPAddr)
	str("observability.logging.level", &cfg.Observability.Logging.Level, o.LogLevel)
	str("observability.logging.format", &cfg.Observability.Logging.Format, o.LogFormat)

	if o.PollInterval != nil {
		cfg.Runner.PollInterval = *o.PollInterval
		meta.sources["runner.poll_interval"] = SourceOverride
	}
	if o.MaxWait != nil {
		cfg.Runner.MaxWait = *o.MaxWait
		meta.sources["runner.max_wait"] = SourceOverride
	}
	if o.TimeoutPolicy != nil {
		policy, err := orchestrator.ParseTimeoutPolicy(*o.TimeoutPolicy)
		if err != nil {
			return err
		}
		cfg.Runner.TimeoutPolicy = policy
		meta.sources["runner.timeout_policy"] = SourceOverride
	}
	if o.LedgerEnabled != nil {
		cfg.LedgerEnabled = *o.LedgerEnabled
		meta.sources["ledger.enabled"] = SourceOverride
	}
	if o.TracingEnabled != nil {
		cfg.Observability.Tracing.Enabled = *o.TracingEnabled
		meta.sources["observability.tracing.enabled"] = SourceOverride
	}
	return nil
}

// parseDuration accepts Go duration strings and bare numbers of seconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
