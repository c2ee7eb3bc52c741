package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML emits Go duration syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full runtime configuration, loaded from an optional YAML
// file with environment variables taking precedence.
type Config struct {
	// Account is the Gmail account alias whose cached OAuth token is used.
	Account string `yaml:"account"`
	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`
	// Signature closes every generated response.
	Signature string `yaml:"signature"`

	Pipeline   PipelineConfig `yaml:"pipeline"`
	Classifier ModelConfig    `yaml:"classifier_model"`
	Analyzer   ModelConfig    `yaml:"analyzer_model"`
	Server     ServerConfig   `yaml:"server"`
}

// PipelineConfig holds the triage pipeline tunables.
type PipelineConfig struct {
	BatchSize           int      `yaml:"batch_size"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	MaxParties          int      `yaml:"max_parties"`
	RiskKeywords        []string `yaml:"risk_keywords"`
	RetryAttempts       int      `yaml:"retry_attempts"`
	RetryDelay          Duration `yaml:"retry_delay"`
	HistoryWindow       Duration `yaml:"history_window"`
	// PollInterval is the pause between cycles in serve mode.
	PollInterval Duration `yaml:"poll_interval"`
}

// ModelConfig describes one hosted model endpoint.
type ModelConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

// ServerConfig holds the REST API settings.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	// JWTSecret signs access tokens.
	JWTSecret string `yaml:"jwt_secret"`
	// APIUser and APIPasswordHash (bcrypt) guard the token endpoint.
	APIUser         string   `yaml:"api_user"`
	APIPasswordHash string   `yaml:"api_password_hash"`
	TokenTTL        Duration `yaml:"token_ttl"`
}

// Default returns the configuration defaults. Model endpoints and secrets
// have no defaults and must come from the file or the environment.
func Default() Config {
	return Config{
		Account:   "default",
		DataDir:   defaultDataDir(),
		Signature: "Inbox Triage Assistant",
		Pipeline: PipelineConfig{
			BatchSize:           100,
			ConfidenceThreshold: 0.6,
			MaxParties:          3,
			RetryAttempts:       2,
			RetryDelay:          Duration(3 * time.Second),
			HistoryWindow:       Duration(7 * 24 * time.Hour),
			PollInterval:        Duration(5 * time.Minute),
		},
		Classifier: ModelConfig{Timeout: Duration(60 * time.Second)},
		Analyzer:   ModelConfig{Timeout: Duration(60 * time.Second)},
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
			APIUser:     "admin",
			TokenTTL:    Duration(time.Hour),
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Running from defaults plus environment is fine.
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overrideFromEnv applies environment variables over the file values.
// Secrets are expected to arrive this way in production.
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("GMAIL_ACCOUNT"); v != "" {
		cfg.Account = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CLASSIFIER_BASE_URL"); v != "" {
		cfg.Classifier.BaseURL = v
	}
	if v := os.Getenv("CLASSIFIER_API_KEY"); v != "" {
		cfg.Classifier.APIKey = v
	}
	if v := os.Getenv("CLASSIFIER_MODEL"); v != "" {
		cfg.Classifier.Model = v
	}
	if v := os.Getenv("ANALYZER_BASE_URL"); v != "" {
		cfg.Analyzer.BaseURL = v
	}
	if v := os.Getenv("ANALYZER_API_KEY"); v != "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("ANALYZER_MODEL"); v != "" {
		cfg.Analyzer.Model = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("API_USER"); v != "" {
		cfg.Server.APIUser = v
	}
	if v := os.Getenv("API_PASSWORD_HASH"); v != "" {
		cfg.Server.APIPasswordHash = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.BatchSize = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.PollInterval = Duration(d)
		}
	}
}

// Validate checks value ranges. Model endpoints are validated lazily so
// commands that never call a model (auth, version) work without them.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.ConfidenceThreshold <= 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline confidence_threshold must be in (0, 1], got %v", c.Pipeline.ConfidenceThreshold)
	}
	if c.Pipeline.MaxParties <= 0 {
		return fmt.Errorf("pipeline max_parties must be positive, got %d", c.Pipeline.MaxParties)
	}
	if c.Pipeline.RetryAttempts < 1 {
		return fmt.Errorf("pipeline retry_attempts must be at least 1, got %d", c.Pipeline.RetryAttempts)
	}
	if c.Pipeline.HistoryWindow <= 0 {
		return fmt.Errorf("pipeline history_window must be positive, got %v", c.Pipeline.HistoryWindow)
	}
	if c.Pipeline.PollInterval.Std() < time.Second {
		return fmt.Errorf("pipeline poll_interval must be at least 1s, got %v", c.Pipeline.PollInterval)
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("server token_ttl must be positive, got %v", c.Server.TokenTTL)
	}
	return nil
}

// ValidateModels checks that both model endpoints are fully configured.
// Called by the commands that run the pipeline.
func (c *Config) ValidateModels() error {
	for name, m := range map[string]ModelConfig{
		"classifier_model": c.Classifier,
		"analyzer_model":   c.Analyzer,
	} {
		if m.APIKey == "" {
			return fmt.Errorf("%s api_key is required", name)
		}
		if m.Model == "" {
			return fmt.Errorf("%s model is required", name)
		}
	}
	return nil
}

// ValidateServer checks the settings the REST API needs.
func (c *Config) ValidateServer() error {
	if len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("server jwt_secret must be at least 32 bytes")
	}
	if c.Server.APIPasswordHash == "" {
		return fmt.Errorf("server api_password_hash is required")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "inboxtriage")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache", "inboxtriage")
}
