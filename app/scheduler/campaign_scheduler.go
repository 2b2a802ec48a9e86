// Package scheduler runs the background sweeps that feed the delivery pipeline
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CampaignStore is the minimal campaign surface the scheduler needs.
// Extracted so the sweep loop can be tested without a database.
type CampaignStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	UpdateStatusIf(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error)
	DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error)
}

// CampaignEnqueuer wakes the delivery engine after a promotion
type CampaignEnqueuer interface {
	Wake()
}

// CampaignScheduler periodically promotes due scheduled campaigns to queued
// and prunes abandoned drafts.
type CampaignScheduler struct {
	store    CampaignStore
	enqueuer CampaignEnqueuer
	cfg      config.SchedulerConfig
	logger   *log.Logger
}

// NewCampaignScheduler creates a new campaign scheduler instance
func NewCampaignScheduler(store CampaignStore, enqueuer CampaignEnqueuer, cfg config.SchedulerConfig) *CampaignScheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}

	s := &CampaignScheduler{
		store:    store,
		enqueuer: enqueuer,
		cfg:      cfg,
	}
	s.initLogger()
	return s
}

// initLogger configures a logger that writes to both stdout and a rotating file
func (s *CampaignScheduler) initLogger() {
	dir := s.cfg.LogDir
	if dir == "" {
		dir = "data"
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "scheduler.log"),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	mw := io.MultiWriter(os.Stdout, fileWriter)
	s.logger = log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loops in background goroutines and returns a stop function
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		s.SweepOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()

	if s.cfg.DraftRetention > 0 {
		go s.startDraftCleanupWorker(ctx)
	}

	return cancel
}

// SweepOnce promotes every due scheduled campaign to queued. The conditional
// write means concurrent scheduler instances race harmlessly: exactly one
// wins each campaign and the losers move on.
func (s *CampaignScheduler) SweepOnce(ctx context.Context) {
	now := utils.UTCNow()

	due, err := s.store.ListDue(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.Printf("failed to list due campaigns: %v", err)
		return
	}

	promoted := 0
	for _, campaign := range due {
		won, err := s.store.UpdateStatusIf(ctx, campaign.ID, models.CampaignStatusScheduled, models.CampaignStatusQueued)
		if err != nil {
			s.logger.Printf("failed to promote campaign %d: %v", campaign.ID, err)
			continue
		}
		if !won {
			// Another instance promoted it, or it was cancelled in between.
			continue
		}
		promoted++
		s.logger.Printf("campaign %s promoted to queued (send_at=%v)", campaign.UUID, campaign.SendAt)
	}

	if promoted > 0 && s.enqueuer != nil {
		s.enqueuer.Wake()
	}
}

// startDraftCleanupWorker prunes drafts older than the retention window
func (s *CampaignScheduler) startDraftCleanupWorker(ctx context.Context) {
	interval := s.cfg.DraftCleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.CleanupDraftsOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupDraftsOnce(ctx)
		}
	}
}

// CleanupDraftsOnce deletes drafts that outlived the retention window
func (s *CampaignScheduler) CleanupDraftsOnce(ctx context.Context) {
	cutoff := utils.UTCNow().Add(-s.cfg.DraftRetention)

	deleted, err := s.store.DeleteStaleDrafts(ctx, cutoff)
	if err != nil {
		s.logger.Printf("draft cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		s.logger.Printf("draft cleanup removed %d stale drafts (cutoff=%s)", deleted, cutoff.Format(time.RFC3339))
	}
}
