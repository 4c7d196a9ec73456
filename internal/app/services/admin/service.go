// Package admin serves the dashboard-only aggregates.
package admin

import (
	"context"

	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/logging"
)

// Service computes platform statistics for the admin dashboard.
type Service struct {
	stats storage.StatsStore
	log   *logging.Logger
}

// New constructs an admin service.
func New(stats storage.StatsStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("admin")
	}
	return &Service{stats: stats, log: log}
}

// Stats returns the aggregate platform snapshot.
func (s *Service) Stats(ctx context.Context) (storage.Stats, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return storage.Stats{}, errors.Internal("stats computation failed", err)
	}
	return stats, nil
}
