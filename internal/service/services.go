package service

import (
	"github.com/mkarpov/go-list-sync/internal/adapter"
	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/store"
)

type Services struct {
	Log         MutationLog
	Versions    VersionStore
	Detector    ConflictDetector
	Resolver    ConflictResolver
	Manual      ManualResolutionQueue
	Coordinator SyncCoordinator
	SyncJob     SyncJob
}

func NewServices(storages *store.Storages, serverAdapter adapter.ServerAdapter, cfg config.AgentSync, lg *logger.Logger) *Services {
	log := NewMutationLog(storages, cfg.ClientID, lg)
	versions := NewVersionStore(storages.Versions, lg)
	detector := NewConflictDetector(lg)
	resolver := NewConflictResolver(lg)
	manual := NewManualQueue(storages.Conflicts, log, resolver, lg)
	coordinator := NewSyncCoordinator(cfg, log, versions, detector, resolver, manual, serverAdapter, lg)

	return &Services{
		Log:         log,
		Versions:    versions,
		Detector:    detector,
		Resolver:    resolver,
		Manual:      manual,
		Coordinator: coordinator,
		SyncJob:     NewSyncJob(coordinator, lg),
	}
}
