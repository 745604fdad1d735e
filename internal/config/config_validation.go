// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package config

// validate checks that the final merged [StructuredConfig] satisfies all
// invariants before it is used at startup.
//
// The structured form stays permissive: each process validates its own view
// ([AgentConfig.validate], [ServerConfig.validate]) so that agent-only and
// server-only settings can be absent from each other's environment.
func (cfg *StructuredConfig) validate() error {
	return nil
}

func (cfg *AgentConfig) validate() error {
	if cfg.Storage.DSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Adapter.BaseURL == "" || cfg.Adapter.RequestTimeout == 0 {
		return ErrInvalidAdapterConfigs
	}

	if cfg.Sync.ListID == "" || cfg.Sync.Concurrency < 0 {
		return ErrInvalidSyncConfigs
	}

	return nil
}

func (cfg *ServerConfig) validate() error {
	if cfg.Address == "" || cfg.TokenSignKey == "" {
		return ErrInvalidServerConfigs
	}

	return nil
}
