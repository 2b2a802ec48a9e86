package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryOutcomeRepositoryImpl implements DeliveryOutcomeRepository
type DeliveryOutcomeRepositoryImpl struct {
	*BaseRepository[models.DeliveryOutcome, models.DeliveryOutcomeFilter]
}

// NewDeliveryOutcomeRepository creates a new delivery outcome repository
func NewDeliveryOutcomeRepository(db *gorm.DB) DeliveryOutcomeRepository {
	return &DeliveryOutcomeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeliveryOutcome, models.DeliveryOutcomeFilter](db),
	}
}

func (r *DeliveryOutcomeRepositoryImpl) applyFilter(db *gorm.DB, f models.DeliveryOutcomeFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.SubscriberID != nil {
		db = db.Where("subscriber_id = ?", *f.SubscriberID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

// ByFilter retrieves outcomes based on filter criteria
func (r *DeliveryOutcomeRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryOutcomeFilter, orderBy string, limit, offset int) ([]*models.DeliveryOutcome, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DeliveryOutcome{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.DeliveryOutcome
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find delivery outcomes by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of outcomes matching the filter
func (r *DeliveryOutcomeRepositoryImpl) Count(ctx context.Context, filter models.DeliveryOutcomeFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DeliveryOutcome{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure creates a pending outcome for the (campaign, subscriber) pair when
// none exists yet. The unique index absorbs races between engine workers; the
// surviving row is returned either way.
func (r *DeliveryOutcomeRepositoryImpl) Ensure(ctx context.Context, campaignID uint, subscriberID int64) (*models.DeliveryOutcome, error) {
	db := r.getDB(ctx)

	outcome := models.DeliveryOutcome{
		CampaignID:   campaignID,
		SubscriberID: subscriberID,
		Status:       models.OutcomeStatusPending,
		CreatedAt:    utils.UTCNow(),
		UpdatedAt:    utils.UTCNow(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "subscriber_id"}},
		DoNothing: true,
	}).Create(&outcome).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure delivery outcome: %w", err)
	}

	// DoNothing leaves the struct without an ID when the row already existed
	if outcome.ID != 0 {
		return &outcome, nil
	}

	var existing models.DeliveryOutcome
	err = db.Where("campaign_id = ? AND subscriber_id = ?", campaignID, subscriberID).
		Last(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("delivery outcome vanished for campaign %d subscriber %d", campaignID, subscriberID)
		}
		return nil, err
	}
	return &existing, nil
}

// Update persists outcome state changes
func (r *DeliveryOutcomeRepositoryImpl) Update(ctx context.Context, outcome *models.DeliveryOutcome) error {
	db := r.getDB(ctx)

	outcome.UpdatedAt = utils.UTCNow()
	if err := db.Save(outcome).Error; err != nil {
		return fmt.Errorf("failed to update delivery outcome %d: %w", outcome.ID, err)
	}
	return nil
}

// StatusBySubscriber returns recorded statuses for the given subscribers
func (r *DeliveryOutcomeRepositoryImpl) StatusBySubscriber(ctx context.Context, campaignID uint, subscriberIDs []int64) (map[int64]models.OutcomeStatus, error) {
	result := make(map[int64]models.OutcomeStatus, len(subscriberIDs))
	if len(subscriberIDs) == 0 {
		return result, nil
	}

	db := r.getDB(ctx)

	var rows []models.DeliveryOutcome
	err := db.Select("subscriber_id", "status").
		Where("campaign_id = ? AND subscriber_id IN ?", campaignID, subscriberIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome statuses: %w", err)
	}

	for _, row := range rows {
		result[row.SubscriberID] = row.Status
	}
	return result, nil
}

// CountByStatus returns outcome tallies for a campaign
func (r *DeliveryOutcomeRepositoryImpl) CountByStatus(ctx context.Context, campaignID uint) (map[models.OutcomeStatus]int64, error) {
	db := r.getDB(ctx)

	var rows []struct {
		Status models.OutcomeStatus
		Total  int64
	}
	err := db.Model(&models.DeliveryOutcome{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes by status: %w", err)
	}

	counts := make(map[models.OutcomeStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// ListDueRetries returns transient failures whose next attempt is due
func (r *DeliveryOutcomeRepositoryImpl) ListDueRetries(ctx context.Context, campaignID uint, now time.Time, limit int) ([]*models.DeliveryOutcome, error) {
	db := r.getDB(ctx)

	query := db.Where("campaign_id = ? AND status = ? AND next_attempt_at <= ?",
		campaignID, models.OutcomeStatusFailedTransient, now).
		Order("next_attempt_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []*models.DeliveryOutcome
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list due retries: %w", err)
	}
	return rows, nil
}

// ListByCampaign returns outcomes for reporting, ordered by subscriber id
func (r *DeliveryOutcomeRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.DeliveryOutcome, error) {
	filter := models.DeliveryOutcomeFilter{CampaignID: &campaignID}
	return r.ByFilter(ctx, filter, "subscriber_id ASC", limit, offset)
}
