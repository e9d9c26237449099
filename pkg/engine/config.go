package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/specsmith/specsmith/pkg/modelstore"
	"github.com/specsmith/specsmith/pkg/uiscan"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Generator GeneratorConfig `yaml:"generator"`
	OCR       OCRConfig       `yaml:"ocr"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `yaml:"host"`      // Bind address (default: all interfaces).
	Port     int    `yaml:"port"`      // Listen port (default 7860).
	CertFile string `yaml:"cert_file"` // TLS certificate; when set with key_file the server uses HTTPS.
	KeyFile  string `yaml:"key_file"`  // TLS private key.
}

// TLS reports whether the server should serve HTTPS.
func (s ServerConfig) TLS() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig controls provider rate limiting.
type RateLimitConfig struct {
	InputTPM   int    `yaml:"input_tpm"`   // Input tokens per minute (0 = no limit).
	OutputTPM  int    `yaml:"output_tpm"`  // Output tokens per minute (0 = no limit).
	RPM        int    `yaml:"rpm"`         // Requests per minute (0 = no limit).
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

// ProviderConfig describes the LLM provider instance.
type ProviderConfig struct {
	Kind        string          `yaml:"kind"`
	BaseURL     string          `yaml:"base_url"`
	APIKey      string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string          `yaml:"model"`
	Temperature float64         `yaml:"temperature"` // Sampling temperature (0 = provider default).
	MaxTokens   int             `yaml:"max_tokens"`  // Response token cap (0 = provider default).
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// GeneratorConfig holds generation defaults.
type GeneratorConfig struct {
	DefaultPlatform string `yaml:"default_platform"` // Platform used when a request omits one (default "Web").
}

// OCRConfig holds screenshot scanning settings.
type OCRConfig struct {
	Languages           []string `yaml:"languages"`            // Recognition languages (default ["eng"]).
	ConfidenceThreshold float64  `yaml:"confidence_threshold"` // Lines at or below this confidence are dropped.
	PSM                 int      `yaml:"psm"`                  // Tesseract page segmentation mode (0 = engine default).
	DataURL             string   `yaml:"data_url"`             // Traineddata download base URL (default: tessdata_fast).
}

// StorageConfig holds filesystem layout settings.
type StorageConfig struct {
	ModelDir string `yaml:"model_dir"` // Recognition model directory (default: temp dir cache).
	RunsDir  string `yaml:"runs_dir"`  // Persisted run records (default: <model_dir>/runs).
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Server:    ServerConfig{Port: 7860},
		Provider:  ProviderConfig{Kind: "openai", Model: "gpt-4"},
		Generator: GeneratorConfig{DefaultPlatform: "Web"},
		OCR: OCRConfig{
			Languages:           []string{"eng"},
			ConfidenceThreshold: uiscan.DefaultConfidenceThreshold,
		},
		Storage: StorageConfig{ModelDir: modelstore.DefaultRoot()},
	}
}

// LoadConfig reads a YAML file over the defaults and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. This allows API keys and other secrets to be kept in
// environment variables (e.g. loaded from a .env file) rather than committed
// in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// applyDefaults fills in zero values left by a partial YAML file.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 7860
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "openai"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gpt-4"
	}
	if c.Generator.DefaultPlatform == "" {
		c.Generator.DefaultPlatform = "Web"
	}
	if len(c.OCR.Languages) == 0 {
		c.OCR.Languages = []string{"eng"}
	}
	if c.OCR.ConfidenceThreshold == 0 {
		c.OCR.ConfidenceThreshold = uiscan.DefaultConfidenceThreshold
	}
	if c.Storage.ModelDir == "" {
		c.Storage.ModelDir = modelstore.DefaultRoot()
	}
	if c.Storage.RunsDir == "" {
		c.Storage.RunsDir = filepath.Join(c.Storage.ModelDir, "runs")
	}
}

// ApplyEnvOverrides applies environment variable overrides on top of the
// loaded configuration. PORT overrides the listen port and OPENAI_API_KEY
// fills in a missing provider key.
func (c *Config) ApplyEnvOverrides() error {
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("engine: config: invalid PORT %q: %w", port, err)
		}
		c.Server.Port = n
	}

	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("engine: config: invalid port %d", c.Server.Port)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("engine: config: cert_file and key_file must be set together")
	}

	if c.Provider.Kind == "" {
		return fmt.Errorf("engine: config: provider kind is required")
	}
	if _, ok := getFactory(c.Provider.Kind); !ok {
		return fmt.Errorf("engine: config: unknown provider kind %q", c.Provider.Kind)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("engine: config: provider api_key is required")
	}

	for _, lang := range c.OCR.Languages {
		if err := modelstore.ValidateLanguage(lang); err != nil {
			return fmt.Errorf("engine: config: %w", err)
		}
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold >= 1 {
		return fmt.Errorf("engine: config: confidence_threshold must be in [0, 1)")
	}

	if rl := c.Provider.RateLimit; rl.BaseDelay != "" {
		if _, err := parseBaseDelay(rl.BaseDelay); err != nil {
			return fmt.Errorf("engine: config: %w", err)
		}
	}

	return nil
}
