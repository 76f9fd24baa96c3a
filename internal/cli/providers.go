package cli

import (
	"fmt"
	"log/slog"

	"github.com/eshaffer321/contribution-reconciler/internal/adapters/clients"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

// NewExtractor builds the extraction selector, with the AI fallback when an
// OpenAI key is configured.
func NewExtractor(cfg *config.Config, logger *slog.Logger, progress extraction.ProgressFunc) *extraction.Selector {
	opts := []extraction.Option{extraction.WithPageWorkers(cfg.Extraction.PageWorkers)}

	c := clients.NewClients(cfg, logger)
	if c.AIExtractor != nil {
		opts = append(opts, extraction.WithAI(c.AIExtractor, cfg.Extraction.AIAttempts, cfg.Extraction.AIDelay))
	} else {
		logger.Debug("no OpenAI key configured, AI extraction disabled")
	}
	if progress != nil {
		opts = append(opts, extraction.WithProgress(progress))
	}
	return extraction.NewSelector(logger.With("system", "extraction"), opts...)
}

// NewService opens storage and builds the reconciliation service. The
// returned close func releases the database.
func NewService(cfg *config.Config, logger *slog.Logger, progress extraction.ProgressFunc) (*service.ReconciliationService, func() error, error) {
	store, err := storage.NewStorage(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	svc, err := service.New(cfg, store, NewExtractor(cfg, logger, progress), logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, store.Close, nil
}
