package config

import "time"

// Defaults for CoordinatorConfig (spec.md §5).
const (
	DefaultWorkerPoolSize    = 8
	DefaultLLMConcurrencyCap = 32
	DefaultStaleLockSeconds  = 300
)

// Defaults for WindowDefaults (spec.md §4.C); unremarkable round numbers,
// the same way tarsy's QueueConfig defaults are tuned constants rather than
// anything derived.
const (
	DefaultWindowSize   = 20
	DefaultWindowStride = 10
)

const defaultAwaitPollInterval = 500 * time.Millisecond

// DefaultSystemConfig returns a SystemConfig with every optional field at
// its production default, to be overridden by the loaded YAML + env.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		Database: DatabaseConfig{
			MaxOpenConn: 20,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		LLMAdapter: LLMAdapterConfig{
			Timeout: 60 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			WorkerPoolSize:    DefaultWorkerPoolSize,
			LLMConcurrencyCap: DefaultLLMConcurrencyCap,
			StaleLockSeconds:  DefaultStaleLockSeconds,
			AwaitPollInterval: defaultAwaitPollInterval,
		},
		Window: WindowDefaults{
			Size:   DefaultWindowSize,
			Stride: DefaultWindowStride,
		},
	}
}

// DefaultTenantConfig returns an empty-but-valid TenantConfig, the shape a
// freshly onboarded organization starts from before calling set_config.
func DefaultTenantConfig() *TenantConfig {
	return &TenantConfig{
		StorageConfig: StorageConfig{Type: StorageTypeLocal},
	}
}
