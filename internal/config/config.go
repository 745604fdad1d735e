// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration container shared by the
// sync agent and the reference dev server. It is populated by merging values
// from environment variables, command-line flags, and an optional JSON file.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type StructuredConfig struct {
	// Storage holds persistence settings for the local mutation queue.
	Storage Storage `envPrefix:"STORAGE_"`

	// Adapter holds transport settings for talking to the sync server.
	Adapter Adapter `envPrefix:"ADAPTER_"`

	// Sync holds the queue engine tuning knobs.
	Sync Sync `envPrefix:"SYNC_"`

	// Server holds settings for the reference dev server.
	Server Server `envPrefix:"SERVER_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables and flags.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// Storage groups persistence settings for the client-local database.
type Storage struct {
	// DSN is the SQLite file path holding the mutation log, version
	// ledger, and conflict records.
	// Env: STORAGE_DSN
	DSN string `env:"DSN"`
}

// Adapter holds outbound transport settings used by the HTTP sync client.
type Adapter struct {
	// BaseURL is the sync server endpoint, e.g. "http://localhost:8080".
	// Env: ADAPTER_BASE_URL
	BaseURL string `env:"BASE_URL"`

	// RequestTimeout bounds every outbound request.
	// Env: ADAPTER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Sync holds the queue engine tuning knobs. Zero values fall back to the
// defaults documented on each field.
type Sync struct {
	// ListID identifies the list this agent instance synchronizes.
	// Env: SYNC_LIST_ID
	ListID string `env:"LIST_ID"`

	// ClientID identifies this device in submitted mutations. Generated
	// when empty.
	// Env: SYNC_CLIENT_ID
	ClientID string `env:"CLIENT_ID"`

	// Concurrency caps in-flight submissions across distinct items.
	// Default 5.
	// Env: SYNC_CONCURRENCY
	Concurrency int `env:"CONCURRENCY"`

	// Interval is the background sync period. Default 30s.
	// Env: SYNC_INTERVAL
	Interval time.Duration `env:"INTERVAL"`
}

// Server holds reference dev server settings.
type Server struct {
	// Address is the listen address in host:port form.
	// Env: SERVER_ADDRESS
	Address string `env:"ADDRESS"`

	// TokenSignKey signs session JWTs.
	// Env: SERVER_TOKEN_SIGN_KEY
	TokenSignKey string `env:"TOKEN_SIGN_KEY"`

	// TokenDuration is the session token lifetime. Default 1h.
	// Env: SERVER_TOKEN_DURATION
	TokenDuration time.Duration `env:"TOKEN_DURATION"`
}

// GetStructuredConfig assembles the merged configuration from environment
// variables, command-line flags, and the optional JSON file, in that order.
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		build()
}
