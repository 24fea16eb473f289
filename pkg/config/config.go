package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/luminadata/schemagraph/pkg/apperrors"
)

// Config holds all service-level configuration for schemagraph.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values for
// fields that support both. Secrets (passwords, API keys) must only
// come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"APP_BASE_URL" env-default:""`
	Frontend string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ArtifactDir is the root directory for per-client pipeline artifacts.
	ArtifactDir string `yaml:"artifact_dir" env:"ARTIFACT_DIR" env-default:"artifacts"`

	// ClientConfigDir holds per-client datasource YAML files.
	ClientConfigDir string `yaml:"client_config_dir" env:"CLIENT_CONFIG_DIR" env-default:"clients"`

	LLM     LLMConfig     `yaml:"llm"`
	Redis   RedisConfig   `yaml:"redis"`
	Graph   GraphConfig   `yaml:"graph"`
	Tracker TrackerConfig `yaml:"tracker"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// LLMConfig holds the Groq (OpenAI-compatible) endpoint configuration.
type LLMConfig struct {
	BaseURL string `yaml:"base_url" env:"GROQ_BASE_URL" env-default:"https://api.groq.com/openai/v1"`
	Model   string `yaml:"model" env:"GROQ_MODEL" env-default:"llama-3.3-70b-versatile"`
	APIKey  string `yaml:"-" env:"GROQ_API_KEY"` // Secret - not in YAML
	// TimeoutSeconds bounds a single chat completion call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"GROQ_TIMEOUT_SECONDS" env-default:"30"`
}

// RedisConfig holds result-cache connection settings.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// TTLSeconds is the lifetime of cached query results.
	TTLSeconds int `yaml:"ttl_seconds" env:"REDIS_TTL" env-default:"3600"`
}

// GraphConfig holds Neo4j connection settings.
type GraphConfig struct {
	URI      string `yaml:"uri" env:"NEO4J_URI" env-default:"bolt://localhost:7687"`
	User     string `yaml:"user" env:"NEO4J_USER" env-default:"neo4j"`
	Password string `yaml:"-" env:"NEO4J_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"NEO4J_DATABASE" env-default:"neo4j"`
}

// TrackerConfig holds API usage accounting settings.
type TrackerConfig struct {
	Dir string `yaml:"dir" env:"TRACKER_DIR" env-default:"usage"`
	// Pricing per million tokens, in USD.
	InputPricePerM  float64 `yaml:"input_price_per_m" env:"TRACKER_INPUT_PRICE_PER_M" env-default:"0.05"`
	OutputPricePerM float64 `yaml:"output_price_per_m" env:"TRACKER_OUTPUT_PRICE_PER_M" env-default:"0.15"`
}

// PipelineConfig tunes the enrichment pipeline.
type PipelineConfig struct {
	// ProfileWorkers bounds concurrent table profiling. Zero means
	// one worker per CPU.
	ProfileWorkers int `yaml:"profile_workers" env:"PIPELINE_PROFILE_WORKERS" env-default:"0"`
	// SampleLimit caps the rows fetched per table for profiling.
	SampleLimit int `yaml:"sample_limit" env:"PIPELINE_SAMPLE_LIMIT" env-default:"0"`
	// OverlapSampleLimit caps the values compared for inclusion detection.
	OverlapSampleLimit int `yaml:"overlap_sample_limit" env:"PIPELINE_OVERLAP_SAMPLE_LIMIT" env-default:"1000"`
	// EnrichPauseMillis is the pause between enrichment calls, for
	// provider rate limits.
	EnrichPauseMillis int `yaml:"enrich_pause_millis" env:"PIPELINE_ENRICH_PAUSE_MILLIS" env-default:"500"`
	// DBTimeoutSeconds bounds a single datasource operation.
	DBTimeoutSeconds int `yaml:"db_timeout_seconds" env:"PIPELINE_DB_TIMEOUT_SECONDS" env-default:"60"`
}

// ClientConfig describes one client datasource, loaded from
// <ClientConfigDir>/<client_id>.yaml. Credentials are indirected
// through environment variable names so the YAML never holds secrets.
type ClientConfig struct {
	ClientID string `yaml:"client_id"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" env-default:"5432"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode" env-default:"disable"`

	// UserEnv and PasswordEnv name the environment variables that
	// hold the actual credentials.
	UserEnv     string `yaml:"user_env"`
	PasswordEnv string `yaml:"password_env"`

	// Resolved at load time, never from YAML.
	User     string `yaml:"-"`
	Password string `yaml:"-"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time. Missing
// config.yaml is fine; environment variables and defaults then apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}

// LoadClient reads and resolves a per-client datasource config.
// A named credential env var that is unset is a hard failure.
func LoadClient(dir, clientID string) (*ClientConfig, error) {
	path := fmt.Sprintf("%s/%s.yaml", dir, clientID)
	cc := &ClientConfig{}
	if err := cleanenv.ReadConfig(path, cc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigMissing,
			fmt.Sprintf("failed to read client config %s", path), err)
	}
	if cc.ClientID == "" {
		cc.ClientID = clientID
	}

	if err := cc.resolveCredentials(); err != nil {
		return nil, err
	}
	return cc, nil
}

// ScaffoldClient writes a starter config file for a new client and
// returns its path. Credentials stay out of the file: the document
// names the environment variables that will carry them. Refuses to
// overwrite an existing config.
func ScaffoldClient(dir, clientID string) (string, error) {
	path := filepath.Join(dir, clientID+".yaml")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("client config %s already exists", path)
	}

	envPrefix := strings.ToUpper(strings.ReplaceAll(clientID, "-", "_"))
	doc := ClientConfig{
		ClientID:    clientID,
		Host:        "localhost",
		Port:        5432,
		Database:    clientID,
		SSLMode:     "disable",
		UserEnv:     envPrefix + "_DB_USER",
		PasswordEnv: envPrefix + "_DB_PASSWORD",
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal client config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create client config dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write client config: %w", err)
	}
	return path, nil
}

// ListClients returns the client IDs that have a config file in dir,
// sorted.
func ListClients(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigMissing,
			fmt.Sprintf("failed to read client config dir %s", dir), err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}

// resolveCredentials pulls User and Password from the environment
// variables named in the YAML.
func (c *ClientConfig) resolveCredentials() error {
	if c.UserEnv == "" || c.PasswordEnv == "" {
		return apperrors.New(apperrors.KindConfigMissing,
			fmt.Sprintf("client %s: user_env and password_env are required", c.ClientID))
	}
	user, ok := os.LookupEnv(c.UserEnv)
	if !ok || user == "" {
		return apperrors.New(apperrors.KindConfigMissing,
			fmt.Sprintf("client %s: environment variable %s is not set", c.ClientID, c.UserEnv))
	}
	password, ok := os.LookupEnv(c.PasswordEnv)
	if !ok || password == "" {
		return apperrors.New(apperrors.KindConfigMissing,
			fmt.Sprintf("client %s: environment variable %s is not set", c.ClientID, c.PasswordEnv))
	}
	c.User = user
	c.Password = password
	return nil
}

// ConnectionString returns a PostgreSQL connection string for the
// client datasource.
func (c *ClientConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the host:port form of the Redis address.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
