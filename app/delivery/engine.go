package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	businessflow "github.com/pushboard/pushboard/business_flow"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/services"
	"github.com/pushboard/pushboard/utils"
	"golang.org/x/time/rate"
)

// CampaignStore is the campaign surface the engine needs
type CampaignStore interface {
	ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error)
	UpdateStatusIf(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error)
	RecordCompletion(ctx context.Context, id uint, status models.CampaignStatus, sent, failed int, completedAt time.Time) error
}

// OutcomeStore is the per-recipient outcome surface the engine needs
type OutcomeStore interface {
	Ensure(ctx context.Context, campaignID uint, subscriberID int64) (*models.DeliveryOutcome, error)
	Update(ctx context.Context, outcome *models.DeliveryOutcome) error
	StatusBySubscriber(ctx context.Context, campaignID uint, subscriberIDs []int64) (map[int64]models.OutcomeStatus, error)
	CountByStatus(ctx context.Context, campaignID uint) (map[models.OutcomeStatus]int64, error)
	ListDueRetries(ctx context.Context, campaignID uint, now time.Time, limit int) ([]*models.DeliveryOutcome, error)
}

// SubscriberStore is the subscriber surface the engine needs
type SubscriberStore interface {
	ByID(ctx context.Context, id int64) (*models.Subscriber, error)
	Deactivate(ctx context.Context, id int64) error
}

// Engine drains queued campaigns: it claims each campaign, resolves its
// audience lazily, dispatches web pushes through a rate-limited worker pool,
// retries transient failures with capped exponential backoff, and records the
// terminal tallies. The (campaign, subscriber) outcome row is the idempotence
// anchor: work can be interrupted and resumed without double-sending.
type Engine struct {
	campaigns   CampaignStore
	outcomes    OutcomeStore
	subscribers SubscriberStore
	resolver    businessflow.AudienceResolver
	push        services.PushService
	limiter     *rate.Limiter
	backoff     Backoff
	cfg         config.DeliveryConfig
	logger      *log.Logger

	wake chan struct{}
}

// NewEngine creates a new delivery engine instance
func NewEngine(
	campaigns CampaignStore,
	outcomes OutcomeStore,
	subscribers SubscriberStore,
	resolver businessflow.AudienceResolver,
	push services.PushService,
	cfg config.DeliveryConfig,
) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.RetryPollInterval <= 0 {
		cfg.RetryPollInterval = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 15 * time.Minute
	}

	return &Engine{
		campaigns:   campaigns,
		outcomes:    outcomes,
		subscribers: subscribers,
		resolver:    resolver,
		push:        push,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		backoff:     Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		cfg:         cfg,
		logger:      log.New(os.Stdout, "delivery ", log.LstdFlags|log.Lmicroseconds|log.LUTC),
	}
}

// Wake nudges the engine to look for queued campaigns without waiting for
// the next poll tick.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start launches the engine loop in a background goroutine and returns a stop function
func (e *Engine) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	e.wake = make(chan struct{}, 1)

	go func() {
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()

		// Campaigns stuck in sending are leftovers from an interrupted run;
		// resuming them is safe because terminal outcomes are skipped.
		e.resumeInterrupted(ctx)
		e.Cycle(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Cycle(ctx)
			case <-e.wake:
				e.Cycle(ctx)
			}
		}
	}()

	return cancel
}

// Cycle claims and delivers every currently queued campaign
func (e *Engine) Cycle(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		queued, err := e.campaigns.ByStatus(ctx, models.CampaignStatusQueued, e.cfg.BatchSize, 0)
		if err != nil {
			e.logger.Printf("failed to list queued campaigns: %v", err)
			return
		}
		if len(queued) == 0 {
			return
		}

		claimed := 0
		for _, campaign := range queued {
			won, err := e.campaigns.UpdateStatusIf(ctx, campaign.ID, models.CampaignStatusQueued, models.CampaignStatusSending)
			if err != nil {
				e.logger.Printf("failed to claim campaign %d: %v", campaign.ID, err)
				continue
			}
			if !won {
				continue
			}
			claimed++
			e.Deliver(ctx, campaign)
		}
		if claimed == 0 {
			// Everything in the page was claimed by another instance
			return
		}
	}
}

func (e *Engine) resumeInterrupted(ctx context.Context) {
	sending, err := e.campaigns.ByStatus(ctx, models.CampaignStatusSending, e.cfg.BatchSize, 0)
	if err != nil {
		e.logger.Printf("failed to list interrupted campaigns: %v", err)
		return
	}
	for _, campaign := range sending {
		e.logger.Printf("resuming interrupted campaign %s", campaign.UUID)
		e.Deliver(ctx, campaign)
	}
}

// Deliver runs one campaign to completion. The campaign must already be in
// sending state.
func (e *Engine) Deliver(ctx context.Context, campaign *models.Campaign) {
	if err := campaign.Message.Validate(); err != nil {
		e.logger.Printf("campaign %s failed payload validation: %v", campaign.UUID, err)
		e.finalize(ctx, campaign, models.CampaignStatusFailed)
		return
	}

	payload, err := json.Marshal(campaign.Message)
	if err != nil {
		e.logger.Printf("campaign %s payload marshal failed: %v", campaign.UUID, err)
		e.finalize(ctx, campaign, models.CampaignStatusFailed)
		return
	}

	if err := e.initialPass(ctx, campaign, payload); err != nil {
		// Leave the campaign in sending; the next resume pass picks it up.
		e.logger.Printf("campaign %s delivery interrupted: %v", campaign.UUID, err)
		return
	}

	if err := e.drainRetries(ctx, campaign, payload); err != nil {
		e.logger.Printf("campaign %s retry drain interrupted: %v", campaign.UUID, err)
		return
	}

	e.finalize(ctx, campaign, models.CampaignStatusCompleted)
}

// initialPass walks the audience in keyset pages and dispatches one attempt
// per subscriber without a terminal outcome.
func (e *Engine) initialPass(ctx context.Context, campaign *models.Campaign, payload []byte) error {
	var afterID int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := e.resolver.MembersPage(ctx, campaign.Segments, afterID, e.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("audience page failed: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		afterID = page[len(page)-1].ID

		ids := make([]int64, 0, len(page))
		for _, sub := range page {
			ids = append(ids, sub.ID)
		}
		recorded, err := e.outcomes.StatusBySubscriber(ctx, campaign.ID, ids)
		if err != nil {
			return fmt.Errorf("outcome status lookup failed: %w", err)
		}

		pending := make([]*models.Subscriber, 0, len(page))
		for _, sub := range page {
			if status, ok := recorded[sub.ID]; ok && status.IsTerminal() {
				continue
			}
			pending = append(pending, sub)
		}

		e.dispatchBatch(ctx, campaign, pending, payload)

		if len(page) < e.cfg.BatchSize {
			return nil
		}
	}
}

// dispatchBatch pushes one attempt to each subscriber through the worker pool
func (e *Engine) dispatchBatch(ctx context.Context, campaign *models.Campaign, subs []*models.Subscriber, payload []byte) {
	if len(subs) == 0 {
		return
	}

	jobs := make(chan *models.Subscriber)
	var wg sync.WaitGroup

	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				if err := e.limiter.Wait(ctx); err != nil {
					return
				}
				e.attempt(ctx, campaign, sub, payload)
			}
		}()
	}

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- sub:
		}
	}
	close(jobs)
	wg.Wait()
}

// attempt performs one dispatch and records the resulting outcome state
func (e *Engine) attempt(ctx context.Context, campaign *models.Campaign, sub *models.Subscriber, payload []byte) {
	outcome, err := e.outcomes.Ensure(ctx, campaign.ID, sub.ID)
	if err != nil {
		e.logger.Printf("failed to ensure outcome for campaign %d subscriber %d: %v", campaign.ID, sub.ID, err)
		return
	}
	if outcome.Status.IsTerminal() {
		return
	}

	start := time.Now()
	result, sendErr := e.push.Send(ctx, sub, payload)
	pushDispatchDuration.Observe(time.Since(start).Seconds())
	pushDispatchTotal.WithLabelValues(result.String()).Inc()

	now := utils.UTCNow()
	outcome.Attempts++
	outcome.LastAttemptAt = &now
	outcome.NextAttemptAt = nil
	outcome.FailureReason = nil

	switch result {
	case services.PushDelivered:
		outcome.Status = models.OutcomeStatusSent

	case services.PushGone:
		outcome.Status = models.OutcomeStatusFailedPermanent
		outcome.FailureReason = utils.ToPtr(sendErr.Error())
		if err := e.subscribers.Deactivate(ctx, sub.ID); err != nil {
			e.logger.Printf("failed to deactivate subscriber %d: %v", sub.ID, err)
		} else {
			subscribersDeactivatedTotal.Inc()
		}

	case services.PushRejected:
		outcome.Status = models.OutcomeStatusFailedPermanent
		outcome.FailureReason = utils.ToPtr(sendErr.Error())

	case services.PushTransientError:
		if outcome.Attempts >= e.cfg.MaxAttempts {
			outcome.Status = models.OutcomeStatusFailedPermanent
			outcome.FailureReason = utils.ToPtr(fmt.Sprintf("retries exhausted after %d attempts: %v", outcome.Attempts, sendErr))
		} else {
			outcome.Status = models.OutcomeStatusFailedTransient
			outcome.FailureReason = utils.ToPtr(sendErr.Error())
			next := now.Add(e.backoff.Delay(outcome.Attempts))
			outcome.NextAttemptAt = &next
		}
	}

	if err := e.outcomes.Update(ctx, outcome); err != nil {
		e.logger.Printf("failed to record outcome for campaign %d subscriber %d: %v", campaign.ID, sub.ID, err)
	}
}

// drainRetries re-attempts transient failures until none remain. Attempts are
// bounded, so every outcome eventually reaches a terminal state.
func (e *Engine) drainRetries(ctx context.Context, campaign *models.Campaign, payload []byte) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		counts, err := e.outcomes.CountByStatus(ctx, campaign.ID)
		if err != nil {
			return fmt.Errorf("outcome tally failed: %w", err)
		}
		if counts[models.OutcomeStatusFailedTransient] == 0 {
			return nil
		}

		due, err := e.outcomes.ListDueRetries(ctx, campaign.ID, utils.UTCNow(), e.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("due retry listing failed: %w", err)
		}
		if len(due) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.RetryPollInterval):
			}
			continue
		}

		subs := make([]*models.Subscriber, 0, len(due))
		for _, outcome := range due {
			sub, err := e.subscribers.ByID(ctx, outcome.SubscriberID)
			if err != nil {
				e.logger.Printf("failed to load subscriber %d for retry: %v", outcome.SubscriberID, err)
				continue
			}
			if sub == nil || !sub.Active {
				// The subscriber left the audience between attempts
				outcome.Status = models.OutcomeStatusFailedPermanent
				outcome.FailureReason = utils.ToPtr("subscriber deactivated before retry")
				outcome.NextAttemptAt = nil
				if err := e.outcomes.Update(ctx, outcome); err != nil {
					e.logger.Printf("failed to close out outcome %d: %v", outcome.ID, err)
				}
				continue
			}
			subs = append(subs, sub)
		}

		e.dispatchBatch(ctx, campaign, subs, payload)
	}
}

// finalize records the campaign's terminal state with outcome tallies.
// Partial per-recipient failure still completes the campaign; only
// pre-dispatch validation lands it in failed.
func (e *Engine) finalize(ctx context.Context, campaign *models.Campaign, status models.CampaignStatus) {
	counts, err := e.outcomes.CountByStatus(ctx, campaign.ID)
	if err != nil {
		e.logger.Printf("failed to tally outcomes for campaign %d: %v", campaign.ID, err)
		return
	}

	sent := int(counts[models.OutcomeStatusSent])
	failed := int(counts[models.OutcomeStatusFailedPermanent] +
		counts[models.OutcomeStatusFailedTransient] +
		counts[models.OutcomeStatusPending])

	if err := e.campaigns.RecordCompletion(ctx, campaign.ID, status, sent, failed, utils.UTCNow()); err != nil {
		e.logger.Printf("failed to finalize campaign %d: %v", campaign.ID, err)
		return
	}

	campaignsFinishedTotal.WithLabelValues(status.String()).Inc()
	e.logger.Printf("campaign %s finished with status %s (sent=%d failed=%d)", campaign.UUID, status, sent, failed)
}
