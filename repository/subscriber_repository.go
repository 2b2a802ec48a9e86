package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
	"gorm.io/gorm"
)

// SubscriberRepositoryImpl implements SubscriberRepository
type SubscriberRepositoryImpl struct {
	*BaseRepository[models.Subscriber, models.SubscriberFilter]
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &SubscriberRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Subscriber, models.SubscriberFilter](db),
	}
}

// ByID retrieves a subscriber by ID
func (r *SubscriberRepositoryImpl) ByID(ctx context.Context, id int64) (*models.Subscriber, error) {
	db := r.getDB(ctx)

	var sub models.Subscriber
	if err := db.Last(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriberRepositoryImpl) applyFilter(db *gorm.DB, f models.SubscriberFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if len(f.Browsers) > 0 {
		db = db.Where("browser IN ?", f.Browsers)
	}
	if len(f.OSes) > 0 {
		db = db.Where("os IN ?", f.OSes)
	}
	if len(f.Countries) > 0 {
		db = db.Where("country IN ?", f.Countries)
	}
	if len(f.LastSeenRanges) > 0 {
		// Ranges are OR'ed: a subscriber matches the dimension when its
		// last_seen_at falls in any selected bucket.
		var clauses []string
		var args []any
		for _, rng := range f.LastSeenRanges {
			switch {
			case rng.From != nil && rng.To != nil:
				clauses = append(clauses, "(last_seen_at >= ? AND last_seen_at < ?)")
				args = append(args, *rng.From, *rng.To)
			case rng.From != nil:
				clauses = append(clauses, "(last_seen_at >= ?)")
				args = append(args, *rng.From)
			case rng.To != nil:
				clauses = append(clauses, "(last_seen_at IS NULL OR last_seen_at < ?)")
				args = append(args, *rng.To)
			}
		}
		if len(clauses) > 0 {
			db = db.Where(strings.Join(clauses, " OR "), args...)
		}
	}
	if f.Active != nil {
		db = db.Where("active = ?", *f.Active)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves subscribers based on filter criteria
func (r *SubscriberRepositoryImpl) ByFilter(ctx context.Context, filter models.SubscriberFilter, orderBy string, limit, offset int) ([]*models.Subscriber, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Subscriber{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Subscriber
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find subscribers by filter: %w", err)
	}
	return rows, nil
}

// Count returns the cardinality of the filter match without materializing rows.
// This is the hot path behind the interactive audience preview.
func (r *SubscriberRepositoryImpl) Count(ctx context.Context, filter models.SubscriberFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Subscriber{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListPage returns the next keyset page of matching subscribers (id ascending)
func (r *SubscriberRepositoryImpl) ListPage(ctx context.Context, filter models.SubscriberFilter, afterID int64, limit int) ([]*models.Subscriber, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Subscriber{}), filter).
		Where("id > ?", afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []*models.Subscriber
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriber page: %w", err)
	}
	return rows, nil
}

// DistinctCountries returns the distinct country codes on active subscribers
func (r *SubscriberRepositoryImpl) DistinctCountries(ctx context.Context) ([]string, error) {
	db := r.getDB(ctx)

	var countries []string
	err := db.Model(&models.Subscriber{}).
		Where("active = ? AND country <> ''", true).
		Distinct("country").
		Order("country ASC").
		Pluck("country", &countries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct countries: %w", err)
	}
	return countries, nil
}

// Deactivate flips the active flag off for a gone endpoint
func (r *SubscriberRepositoryImpl) Deactivate(ctx context.Context, id int64) error {
	db := r.getDB(ctx)

	err := db.Model(&models.Subscriber{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active":     false,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate subscriber %d: %w", id, err)
	}
	return nil
}
