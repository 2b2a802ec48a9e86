package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByID retrieves a campaign by ID
func (r *CampaignRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Last(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// ByStatus retrieves campaigns by status with pagination
func (r *CampaignRepositoryImpl) ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{Status: &status}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.SendBefore != nil {
		db = db.Where("send_at <= ?", *f.SendBefore)
	}
	if f.SendAfter != nil {
		db = db.Where("send_at > ?", *f.SendAfter)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var campaigns []*models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to find campaigns by filter: %w", err)
	}
	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Update updates a campaign
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign models.Campaign) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	now := utils.UTCNow()
	campaign.UpdatedAt = &now

	err = db.Save(&campaign).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateStatusIf performs a compare-and-set status transition. The WHERE clause
// on the expected prior status is the sole mechanism preventing double-send
// across concurrent scheduler and engine instances.
func (r *CampaignRepositoryImpl) UpdateStatusIf(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error) {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	switch to {
	case models.CampaignStatusQueued:
		updates["queued_at"] = now
	case models.CampaignStatusSending:
		updates["started_at"] = now
	}

	result := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition campaign %d from %s to %s: %w", id, from, to, result.Error)
	}

	return result.RowsAffected == 1, nil
}

// ListDue returns scheduled campaigns whose send_at has passed
func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusScheduled
	filter := models.CampaignFilter{Status: &status, SendBefore: &now}
	return r.ByFilter(ctx, filter, "send_at ASC", limit, 0)
}

// RecordCompletion moves a sending campaign to its terminal state with tallies
func (r *CampaignRepositoryImpl) RecordCompletion(ctx context.Context, id uint, status models.CampaignStatus, sent, failed int, completedAt time.Time) error {
	db := r.getDB(ctx)

	result := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, models.CampaignStatusSending).
		Updates(map[string]any{
			"status":       status,
			"sent_count":   sent,
			"failed_count": failed,
			"completed_at": completedAt,
			"updated_at":   utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record completion for campaign %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("campaign %d was not in sending state", id)
	}
	return nil
}

// DeleteStaleDrafts removes drafts created before the cutoff
func (r *CampaignRepositoryImpl) DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.getDB(ctx)

	result := db.Where("status = ? AND created_at < ?", models.CampaignStatusDraft, cutoff).
		Delete(&models.Campaign{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete stale drafts: %w", result.Error)
	}
	return result.RowsAffected, nil
}
