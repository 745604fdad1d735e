package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-a server listen address in [host]:[port] form (dev server)
//	-base-url sync server base URL (agent)
//	-d local database path
//	-c/-config json file path with configs
//	-list list identifier to synchronize
//	-client-id device identifier stamped on mutations
//	-concurrency max in-flight submissions
//	-sync-interval background sync period (e.g., "30s", "5m")
//	-request-timeout request timeout (e.g., "30s", "1m")
//	-token-sign-key token signing key (dev server)
//	-token-duration token lifetime (dev server, e.g., "1h")
func ParseFlags() *StructuredConfig {
	var serverAddress string
	var baseURL string
	var databaseDSN string
	var jsonConfigPath string
	var listID string
	var clientID string
	var concurrency int
	var syncInterval time.Duration
	var requestTimeout time.Duration
	var tokenSignKey string
	var tokenDuration time.Duration

	flag.StringVar(&serverAddress, "a", "", "Dev server listen address host:port")
	flag.StringVar(&baseURL, "base-url", "", "Sync server base URL")
	flag.StringVar(&databaseDSN, "d", "", "Local database path")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	flag.StringVar(&listID, "list", "", "List identifier to synchronize")
	flag.StringVar(&clientID, "client-id", "", "Device identifier")
	flag.IntVar(&concurrency, "concurrency", 0, "Max in-flight submissions")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Background sync period (e.g., 30s)")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	flag.StringVar(&tokenSignKey, "token-sign-key", "", "Token signing key")
	flag.DurationVar(&tokenDuration, "token-duration", 0, "Token lifetime (e.g., 1h)")

	flag.Parse()

	return &StructuredConfig{
		Storage: Storage{DSN: databaseDSN},
		Adapter: Adapter{
			BaseURL:        baseURL,
			RequestTimeout: requestTimeout,
		},
		Sync: Sync{
			ListID:      listID,
			ClientID:    clientID,
			Concurrency: concurrency,
			Interval:    syncInterval,
		},
		Server: Server{
			Address:       serverAddress,
			TokenSignKey:  tokenSignKey,
			TokenDuration: tokenDuration,
		},
		JSONFilePath: jsonConfigPath,
	}
}
