package main

import (
	"fmt"

	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/internal/devserver"
	"github.com/mkarpov/go-list-sync/internal/logger"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("devserver")
	cfg, err := config.GetServerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	server := devserver.New(cfg.TokenSignKey, cfg.TokenDuration, log)

	log.Info().Str("address", cfg.Address).Msg("reference sync server listening")
	if err = server.ListenAndServe(cfg.Address); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
