// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/pushboard/pushboard/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByID(ctx context.Context, id uint) (*models.Campaign, error)
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign models.Campaign) error

	// UpdateStatusIf performs a conditional status transition keyed on the
	// expected prior state. It reports whether this caller won the write;
	// losing the race is expected under concurrent sweeps and is not an error.
	UpdateStatusIf(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error)

	// ListDue returns scheduled campaigns whose send_at has passed
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)

	// RecordCompletion moves a sending campaign to its terminal state along
	// with the final per-recipient tallies.
	RecordCompletion(ctx context.Context, id uint, status models.CampaignStatus, sent, failed int, completedAt time.Time) error

	// DeleteStaleDrafts removes drafts created before the cutoff and returns
	// the number of rows deleted.
	DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubscriberRepository defines operations for subscribers
type SubscriberRepository interface {
	Repository[models.Subscriber, models.SubscriberFilter]
	ByID(ctx context.Context, id int64) (*models.Subscriber, error)

	// ListPage returns subscribers matching the filter with id > afterID,
	// ordered by id ascending. Keyset pagination keeps the member sequence
	// lazy and restartable for the delivery engine.
	ListPage(ctx context.Context, filter models.SubscriberFilter, afterID int64, limit int) ([]*models.Subscriber, error)

	// DistinctCountries returns the distinct country codes observed on
	// active subscribers, for the data-derived segment dimension.
	DistinctCountries(ctx context.Context) ([]string, error)

	// Deactivate flips the active flag off, excluding the subscriber from
	// all future audience resolutions.
	Deactivate(ctx context.Context, id int64) error
}

// DeliveryOutcomeRepository defines operations for per-recipient delivery outcomes
type DeliveryOutcomeRepository interface {
	Repository[models.DeliveryOutcome, models.DeliveryOutcomeFilter]

	// Ensure creates a pending outcome for the pair if none exists and
	// returns the current row either way.
	Ensure(ctx context.Context, campaignID uint, subscriberID int64) (*models.DeliveryOutcome, error)

	Update(ctx context.Context, outcome *models.DeliveryOutcome) error

	// StatusBySubscriber returns the recorded status for each of the given
	// subscribers under the campaign; absent pairs are omitted.
	StatusBySubscriber(ctx context.Context, campaignID uint, subscriberIDs []int64) (map[int64]models.OutcomeStatus, error)

	// CountByStatus returns outcome tallies for a campaign
	CountByStatus(ctx context.Context, campaignID uint) (map[models.OutcomeStatus]int64, error)

	// ListDueRetries returns transient failures whose next attempt is due
	ListDueRetries(ctx context.Context, campaignID uint, now time.Time, limit int) ([]*models.DeliveryOutcome, error)

	// ListByCampaign returns outcomes for reporting, ordered by subscriber id
	ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.DeliveryOutcome, error)
}
