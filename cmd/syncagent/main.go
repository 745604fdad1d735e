package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mkarpov/go-list-sync/internal/adapter"
	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/service"
	"github.com/mkarpov/go-list-sync/internal/store"
	"github.com/mkarpov/go-list-sync/internal/utils"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewAgentLogger("syncagent")
	cfg, err := config.GetAgentConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}
	if cfg.Sync.ClientID == "" {
		cfg.Sync.ClientID = utils.NewUUIDGenerator().Generate()
		log.Info().Str("client_id", cfg.Sync.ClientID).Msg("generated client id")
	}

	storages, err := store.NewStorages(cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating storages")
	}

	serverAdapter := adapter.NewHTTPServerAdapter(cfg.Adapter)
	services := service.NewServices(storages, serverAdapter, cfg.Sync, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// mutations left in flight by a previous run go back to pending
	if _, err = services.Log.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("error recovering mutation log")
	}

	if err = serverAdapter.Session(ctx, cfg.Sync.ClientID); err != nil {
		// offline start is fine: mutations queue up locally until the
		// first successful pass
		log.Warn().Err(err).Msg("could not open session, starting offline")
	}

	go consumeEvents(ctx, services.Coordinator, log)

	services.SyncJob.Start(ctx, cfg.Sync.Interval)
	defer services.SyncJob.Stop()

	if err = services.Coordinator.SyncNow(ctx); err != nil && !errors.Is(err, service.ErrQueuePaused) {
		log.Error().Err(err).Msg("initial sync pass failed")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

// consumeEvents drains the coordinator's event streams into the log so the
// buffers never back up when no UI is attached.
func consumeEvents(ctx context.Context, coordinator service.SyncCoordinator, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-coordinator.StatusEvents():
			log.Info().
				Int("pending", status.Pending).
				Int("failed", status.Failed).
				Int("conflicts", status.Conflicts).
				Uint64("dropped_events", status.DroppedEvents).
				Msg("queue status")
		case rec := <-coordinator.ConflictEvents():
			log.Warn().
				Str("conflict_id", rec.ID).
				Str("item_id", rec.ItemID).
				Str("kind", string(rec.Kind)).
				Msg("conflict requires manual resolution")
		}
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
