package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "gofun" namespace for metrics.
	Namespace string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}

// New builds a Registry from config. It returns nil when metrics are
// disabled; components treat a nil *Registry as "no metrics".
// The default registerer with the default namespace reuses DefaultRegistry,
// which is already registered there.
func New(config Config) *Registry {
	if !config.Enabled {
		return nil
	}
	if config.Registry == nil || config.Registry == prometheus.DefaultRegisterer {
		if config.Namespace == "" || config.Namespace == DefaultNamespace {
			return DefaultRegistry
		}
		return NewRegistryWithNamespace(prometheus.DefaultRegisterer, config.Namespace)
	}
	return NewRegistryWithNamespace(config.Registry, config.Namespace)
}
