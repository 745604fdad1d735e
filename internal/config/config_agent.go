package config

import (
	"fmt"
	"time"
)

// AgentStorage contains local database settings for the sync agent.
type AgentStorage struct {
	// DSN is the SQLite file path for the durable mutation queue.
	DSN string
}

// AgentAdapter holds network settings used by the agent's transport layer.
type AgentAdapter struct {
	// BaseURL is the sync server endpoint.
	BaseURL string
	// RequestTimeout is the default timeout for outbound requests.
	RequestTimeout time.Duration
}

// AgentSync holds the queue engine settings for one agent instance.
type AgentSync struct {
	// ListID identifies the list this agent synchronizes.
	ListID string
	// ClientID identifies this device; generated when empty.
	ClientID string
	// Concurrency caps in-flight submissions across distinct items.
	Concurrency int
	// Interval is the background sync period.
	Interval time.Duration
}

// AgentConfig is the top-level sync agent configuration assembled from
// [StructuredConfig].
type AgentConfig struct {
	// Storage contains local persistence settings.
	Storage AgentStorage
	// Adapter contains transport settings.
	Adapter AgentAdapter
	// Sync contains queue engine settings.
	Sync AgentSync
}

// GetAgentConfig builds and validates an agent-specific config view from the
// merged structured configuration.
func GetAgentConfig() (*AgentConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	agentCfg := &AgentConfig{
		Storage: AgentStorage{DSN: cfg.Storage.DSN},
		Adapter: AgentAdapter{
			BaseURL:        cfg.Adapter.BaseURL,
			RequestTimeout: cfg.Adapter.RequestTimeout,
		},
		Sync: AgentSync{
			ListID:      cfg.Sync.ListID,
			ClientID:    cfg.Sync.ClientID,
			Concurrency: cfg.Sync.Concurrency,
			Interval:    cfg.Sync.Interval,
		},
	}

	return agentCfg, agentCfg.validate()
}

// ServerConfig is the reference dev server configuration.
type ServerConfig struct {
	// Address is the listen address in host:port form.
	Address string
	// TokenSignKey signs session JWTs.
	TokenSignKey string
	// TokenDuration is the session token lifetime.
	TokenDuration time.Duration
}

// GetServerConfig builds and validates the dev server config view from the
// merged structured configuration.
func GetServerConfig() (*ServerConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	serverCfg := &ServerConfig{
		Address:       cfg.Server.Address,
		TokenSignKey:  cfg.Server.TokenSignKey,
		TokenDuration: cfg.Server.TokenDuration,
	}

	return serverCfg, serverCfg.validate()
}
