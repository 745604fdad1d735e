// Package config provides configuration loading, merging, and validation
// for go-list-sync processes.
//
// Configuration is assembled from multiple sources in the following priority
// order (an earlier source wins for any field it sets):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON config file
//
// The main entry points are [GetAgentConfig] for the sync agent and
// [GetServerConfig] for the reference dev server.
package config
