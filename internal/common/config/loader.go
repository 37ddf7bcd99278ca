// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over it and
// expands ${VAR} placeholders.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known environment variables when the yaml left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("LLM_BASE_URL")
	}
	if cfg.Weather.APIKey == "" {
		cfg.Weather.APIKey = os.Getenv("WEATHER_API_KEY")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "krishmitra-advisor"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 40000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 45000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.IntentTimeout == 0 {
		cfg.LLM.IntentTimeout = 4000
	}

	o := &cfg.Orchestrator
	if o.ModuleTimeout == 0 {
		o.ModuleTimeout = 10000
	}
	if o.RequestBudget == 0 {
		o.RequestBudget = 30000
	}
	if o.MinWeight == 0 {
		o.MinWeight = 0.5
	}
	if o.DegradedFloor == 0 {
		o.DegradedFloor = 0.2
	}
	if o.MaxEvidence == 0 {
		o.MaxEvidence = 8
	}
	if o.PublishThreshold == 0 {
		o.PublishThreshold = 0.5
	}

	e := &cfg.Evidence
	if e.Backend == "" {
		e.Backend = "memory"
	}
	if e.TopK == 0 {
		e.TopK = 5
	}
	if e.Index == "" {
		e.Index = "agri-evidence"
	}
	if e.Table == "" {
		e.Table = "evidence_chunks"
	}
	if e.Embedder == "" {
		e.Embedder = "hash"
	}
	if e.Dimensions == 0 {
		e.Dimensions = 256
	}
	if e.RetryDelay == 0 {
		e.RetryDelay = 100
	}

	for key, m := range cfg.Modules {
		if m.Timeout == 0 {
			m.Timeout = o.ModuleTimeout
		}
		cfg.Modules[key] = m
	}

	if cfg.RegistryPath == "" {
		cfg.RegistryPath = "configs/module-registry.json"
	}

	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "https://api.weatherapi.com/v1"
	}
	if cfg.Weather.Days == 0 {
		cfg.Weather.Days = 3
	}

	if cfg.Finance.MinBasicParams == 0 {
		cfg.Finance.MinBasicParams = 1
	}
	if cfg.Finance.MinCostParams == 0 {
		cfg.Finance.MinCostParams = 2
	}
	if cfg.Finance.MinTotalParams == 0 {
		cfg.Finance.MinTotalParams = 4
	}
	if cfg.Finance.PriceTable == "" {
		cfg.Finance.PriceTable = "market_prices"
	}

	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = 86400
	}
	if cfg.Sessions.MaxEntries == 0 {
		cfg.Sessions.MaxEntries = 20
	}
	if cfg.Sessions.ContextTTL == 0 {
		cfg.Sessions.ContextTTL = 7200
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.SampleRatio == 0 {
		cfg.Observability.SampleRatio = 1
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	switch cfg.Evidence.Backend {
	case "memory":
	case "pgvector":
		if !cfg.Database.Postgres.Enabled() {
			return fmt.Errorf("database.postgres.host is required for the pgvector backend")
		}
	case "elasticsearch":
		if !cfg.Database.Elasticsearch.Enabled() {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch backend")
		}
	default:
		return fmt.Errorf("evidence.backend %q is not one of memory, pgvector, elasticsearch", cfg.Evidence.Backend)
	}

	switch cfg.Evidence.Embedder {
	case "hash":
	case "llm":
		if !cfg.LLM.Enabled() {
			return fmt.Errorf("llm.base_url is required for the llm embedder")
		}
	default:
		return fmt.Errorf("evidence.embedder %q is not one of hash, llm", cfg.Evidence.Embedder)
	}

	o := cfg.Orchestrator
	if o.ModuleTimeout > o.RequestBudget {
		return fmt.Errorf("orchestrator.module_timeout (%d) exceeds request_budget (%d)", o.ModuleTimeout, o.RequestBudget)
	}
	if o.DegradedFloor < 0 || o.DegradedFloor > 1 || o.PublishThreshold < 0 || o.PublishThreshold > 1 {
		return fmt.Errorf("orchestrator confidence thresholds must lie in [0,1]")
	}
	if cfg.Evidence.TopK < 1 {
		return fmt.Errorf("evidence.top_k must be positive")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       45000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

// IsModuleEnabled treats an unlisted module as enabled.
func IsModuleEnabled(cfg *Config, module string) bool {
	if m, exists := cfg.Modules[module]; exists {
		return m.Enabled
	}
	return true
}
