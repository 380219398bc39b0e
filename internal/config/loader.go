package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidGeneratorNames lists the recognized Generator variant names (§6
// "Generator provider contract"). Used by [Validate] to warn about unknown names.
var ValidGeneratorNames = []string{"gemini", "openai", "deepseek", "stub"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, resolves
// credentials, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ResolveCredentials(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with the defaults named throughout
// spec.md: graph_query_max_entities=5, graph_query_max_neighbors=5,
// graph_cache_ttl=3600s, cache.sweep_batch=64, retrieval.cache_ttl=3600s,
// retrieval.top_k_default=3.
func ApplyDefaults(cfg *Config) {
	if cfg.Graph.QueryMaxEntities == 0 {
		cfg.Graph.QueryMaxEntities = 5
	}
	if cfg.Graph.QueryMaxNeighbors == 0 {
		cfg.Graph.QueryMaxNeighbors = 5
	}
	if cfg.Graph.CacheTTL == 0 {
		cfg.Graph.CacheTTL = 3600 * time.Second
	}
	if cfg.Cache.SweepBatch == 0 {
		cfg.Cache.SweepBatch = 64
	}
	if cfg.Retrieval.CacheTTL == 0 {
		cfg.Retrieval.CacheTTL = 3600 * time.Second
	}
	if cfg.Retrieval.TopKDefault == 0 {
		cfg.Retrieval.TopKDefault = 3
	}
	if cfg.Admin.APIKeyHeader == "" {
		cfg.Admin.APIKeyHeader = "X-API-Key"
	}
}

// ResolveCredentials fills cfg.LLM.APIKey from the process environment when
// it is empty in the configuration file, per the precedence rule "explicit
// argument > configuration file > process environment" (spec.md §6). The
// explicit-argument tier is the caller's responsibility (e.g. a CLI flag
// overriding cfg.LLM.APIKey before Validate runs).
func ResolveCredentials(cfg *Config) {
	if cfg.LLM.APIKey != "" {
		return
	}
	envVar := "GRAPHRAG_" + strings.ToUpper(cfg.LLM.Name) + "_API_KEY"
	if v := os.Getenv(envVar); v != "" {
		cfg.LLM.APIKey = v
		return
	}
	if v := os.Getenv("GRAPHRAG_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateGeneratorName(cfg.LLM.Name)

	if cfg.LLM.Name == "" {
		slog.Warn("no llm provider configured; the service will run in degraded stub mode")
	}
	if cfg.LLM.Name != "" && cfg.LLM.Name != "stub" && cfg.LLM.APIKey == "" {
		slog.Warn("llm provider configured without credentials; falling back to degraded stub mode",
			"provider", cfg.LLM.Name)
	}

	if cfg.Graph.QueryMaxEntities < 0 {
		errs = append(errs, fmt.Errorf("graph.graph_query_max_entities must be >= 0"))
	}
	if cfg.Graph.QueryMaxNeighbors < 0 {
		errs = append(errs, fmt.Errorf("graph.graph_query_max_neighbors must be >= 0"))
	}
	if cfg.Retrieval.TopKDefault < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k_default must be >= 0"))
	}

	return errors.Join(errs...)
}

// validateGeneratorName logs a warning if name is non-empty and not found in
// [ValidGeneratorNames].
func validateGeneratorName(name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidGeneratorNames, name) {
		return
	}
	slog.Warn("unknown llm provider name — may be a typo or a third-party provider",
		"name", name,
		"known", ValidGeneratorNames,
	)
}
