package config

import "time"

// SystemConfig is the process-wide bootstrap configuration loaded once at
// startup from `pulse.yaml` + environment (spec.md §2 component I). It is
// distinct from TenantConfig, which is per-organization and lives in the
// `tenant_configs` table.
type SystemConfig struct {
	Database    DatabaseConfig    `yaml:"database"`
	HTTP        HTTPConfig        `yaml:"http"`
	LLMAdapter  LLMAdapterConfig  `yaml:"llm_adapter"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Window      WindowDefaults    `yaml:"window"`
}

// DatabaseConfig holds the Postgres connection string.
type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	MaxOpenConn int    `yaml:"max_open_conn,omitempty"`
}

// HTTPConfig holds the API server's listen address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LLMAdapterConfig points at the external LLM/embedding HTTP collaborator
// (spec.md §1 "out of scope: LLM/embedding provider adapters").
type LLMAdapterConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CoordinatorConfig tunes the Pipeline Coordinator's concurrency model
// (spec.md §5 "Concurrency & Resource Model").
type CoordinatorConfig struct {
	WorkerPoolSize    int           `yaml:"worker_pool_size,omitempty"`
	LLMConcurrencyCap int           `yaml:"llm_concurrency_cap,omitempty"`
	StaleLockSeconds  int           `yaml:"stale_lock_seconds,omitempty"`
	AwaitPollInterval time.Duration `yaml:"await_poll_interval,omitempty"`
}

// WindowDefaults holds the system-wide fallback window size/stride used
// when a TenantConfig entry doesn't override them (spec.md §4.C).
type WindowDefaults struct {
	Size   int `yaml:"size,omitempty"`
	Stride int `yaml:"stride,omitempty"`
}
