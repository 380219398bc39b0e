// Package config provides the configuration schema and loader for the
// GraphRAG retrieval service.
package config

import "time"

// Config is the root configuration structure for the service.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Graph     GraphConfig    `yaml:"graph"`
	Cache     CacheConfig    `yaml:"cache"`
	LLM       ProviderEntry  `yaml:"llm"`
	Retrieval RetrieveConfig `yaml:"retrieval"`
	Admin     AdminConfig    `yaml:"admin"`
}

// ServerConfig holds network, CORS, and logging settings for the service.
// Host/Port/CORS/MetricsPort are recognized options per SPEC_FULL.md §8 even
// though the transport and metrics exporter themselves are external
// collaborators; this struct threads the resolved values through to whoever
// wires them up.
type ServerConfig struct {
	// Host is the interface the transport binds to (e.g., "0.0.0.0").
	Host string `yaml:"host"`

	// Port is the TCP port the transport listens on.
	Port int `yaml:"port"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// CORSAllowedOrigins lists origins permitted by the transport's CORS policy.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// MetricsPort is the port an external metrics collector would bind to.
	MetricsPort int `yaml:"metrics_port"`
}

// LogLevel is a validated logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is empty or one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// GraphConfig configures the graph store and the orchestrator's graph
// enhancement pass (spec.md §4.6 step 3).
type GraphConfig struct {
	// DBPath is the filesystem path to the durable single-file graph store.
	// An empty path selects the in-memory implementation.
	DBPath string `yaml:"graph_db_path"`

	// QueryMaxEntities is the configured bound on seed entities for graph
	// enhancement. Defaults to 5 when zero. The orchestrator does not read
	// it: graph enhancement uses its own fixed bound of 5 seed entities.
	QueryMaxEntities int `yaml:"graph_query_max_entities"`

	// QueryMaxNeighbors is the configured bound on neighbors per seed entity
	// folded into pseudo-sources. Defaults to 5 when zero. The orchestrator
	// does not read it: graph enhancement uses its own fixed bound of 5.
	QueryMaxNeighbors int `yaml:"graph_query_max_neighbors"`

	// CacheTTL is the orchestrator's outer cache TTL. Defaults to 3600s
	// when zero.
	CacheTTL time.Duration `yaml:"graph_cache_ttl"`
}

// CacheConfig configures the fingerprint cache (C4).
type CacheConfig struct {
	// SweepBatch bounds how many expired keys an opportunistic sweep removes
	// per triggering write. Defaults to 64 when zero.
	SweepBatch int `yaml:"sweep_batch"`
}

// RetrieveConfig configures the retrieval service (C5).
type RetrieveConfig struct {
	// TopKDefault is used when a caller does not specify top_k.
	TopKDefault int `yaml:"top_k_default"`

	// VectorDimension documents the embedding dimensionality the attached
	// vector store is expected to use. The vector store itself is an
	// external collaborator; this value is carried for validation by
	// whoever wires it in.
	VectorDimension int `yaml:"vector_dimension"`

	// CacheTTL is the retrieval service's own inner cache TTL. Defaults to
	// 3600s when zero, per spec.md §4.5 step 4.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// AdminConfig holds shared-secret authentication settings for admin
// endpoints. The transport that enforces this is an external collaborator;
// this struct only carries the resolved secret through.
type AdminConfig struct {
	APIKey       string `yaml:"api_key"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// ProviderEntry configures the Generator (§6 "generator provider contract").
// Name selects among "gemini", "openai", "deepseek", or "stub"; credentials
// resolve per the precedence rule in spec.md §6 "Configuration".
type ProviderEntry struct {
	// Name selects the registered Generator variant.
	Name string `yaml:"name"`

	// APIKey is the provider credential. If empty, [ResolveCredentials] falls
	// back to the process environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// MaxTokens is the default completion token budget (llm_max_tokens).
	MaxTokens int `yaml:"llm_max_tokens"`

	// Temperature is the default sampling temperature (llm_temperature).
	Temperature float64 `yaml:"llm_temperature"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}
