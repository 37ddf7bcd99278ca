// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Database      DatabaseConfig          `mapstructure:"database"`
	LLM           LLMConfig               `mapstructure:"llm"`
	Orchestrator  OrchestratorConfig      `mapstructure:"orchestrator"`
	Evidence      EvidenceConfig          `mapstructure:"evidence"`
	Modules       map[string]ModuleConfig `mapstructure:"modules"`
	RegistryPath  string                  `mapstructure:"registry_path"`
	Weather       WeatherConfig           `mapstructure:"weather"`
	Finance       FinanceConfig           `mapstructure:"finance"`
	Sessions      SessionsConfig          `mapstructure:"sessions"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// Enabled reports whether a postgres host is configured.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

func (e ElasticsearchConfig) Enabled() bool { return e.GetURL() != "" }

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Address != "" }

// --- Advisory Configuration ---

// LLMConfig points at an OpenAI compatible chat/embeddings endpoint.
type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	IntentTimeout  int    `mapstructure:"intent_timeout"` // milliseconds
	MaxRetries     int    `mapstructure:"max_retries"`
}

func (l LLMConfig) Enabled() bool { return l.BaseURL != "" }

type OrchestratorConfig struct {
	ModuleTimeout    int     `mapstructure:"module_timeout"` // milliseconds
	RequestBudget    int     `mapstructure:"request_budget"` // milliseconds
	MinWeight        float64 `mapstructure:"min_weight"`
	DegradedFloor    float64 `mapstructure:"degraded_floor"`
	MaxEvidence      int     `mapstructure:"max_evidence"`
	PublishThreshold float64 `mapstructure:"publish_threshold"`
}

type EvidenceConfig struct {
	Backend    string `mapstructure:"backend"` // memory | pgvector | elasticsearch
	TopK       int    `mapstructure:"top_k"`
	Index      string `mapstructure:"index"`
	Table      string `mapstructure:"table"`
	CorpusPath string `mapstructure:"corpus_path"`
	Embedder   string `mapstructure:"embedder"` // hash | llm
	Dimensions int    `mapstructure:"dimensions"`
	RetryDelay int    `mapstructure:"retry_delay"` // milliseconds
}

type ModuleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type WeatherConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Days    int    `mapstructure:"days"`
}

// FinanceConfig carries the follow-up question policy of the finance module.
type FinanceConfig struct {
	MinBasicParams int    `mapstructure:"min_basic_params"`
	MinCostParams  int    `mapstructure:"min_cost_params"`
	MinTotalParams int    `mapstructure:"min_total_params"`
	PriceTable     string `mapstructure:"price_table"`
}

type SessionsConfig struct {
	TTL        int `mapstructure:"ttl"` // seconds
	MaxEntries int `mapstructure:"max_entries"`
	ContextTTL int `mapstructure:"context_ttl"` // seconds
}

type ObservabilityConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
