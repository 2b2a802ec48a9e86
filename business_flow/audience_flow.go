// Package businessflow contains the core business logic and use cases for audience resolution workflows
package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/repository"
	"github.com/pushboard/pushboard/utils"
)

// Engagement bucket boundaries relative to now
const (
	engagementActiveWindow  = 7 * 24 * time.Hour
	engagementDormantWindow = 30 * 24 * time.Hour
)

// AudienceResolver turns a campaign's segment filters into subscribers.
// Resolution is lazy: Count never materializes rows, and MembersPage walks
// the audience in restartable keyset pages.
type AudienceResolver interface {
	Count(ctx context.Context, filters models.SegmentFilterList) (int64, error)
	MembersPage(ctx context.Context, filters models.SegmentFilterList, afterID int64, limit int) ([]*models.Subscriber, error)
}

// AudienceResolverImpl implements AudienceResolver over the subscriber repository
type AudienceResolverImpl struct {
	subscriberRepo repository.SubscriberRepository
}

// NewAudienceResolver creates a new audience resolver instance
func NewAudienceResolver(subscriberRepo repository.SubscriberRepository) AudienceResolver {
	return &AudienceResolverImpl{subscriberRepo: subscriberRepo}
}

// Count returns the audience size without loading subscriber rows
func (r *AudienceResolverImpl) Count(ctx context.Context, filters models.SegmentFilterList) (int64, error) {
	if filters.HasEmptyValueSet() {
		return 0, nil
	}

	filter, err := buildSubscriberFilter(filters, utils.UTCNow())
	if err != nil {
		return 0, err
	}
	return r.subscriberRepo.Count(ctx, filter)
}

// MembersPage returns the next keyset page of the audience, ordered by id
func (r *AudienceResolverImpl) MembersPage(ctx context.Context, filters models.SegmentFilterList, afterID int64, limit int) ([]*models.Subscriber, error) {
	if filters.HasEmptyValueSet() {
		return nil, nil
	}

	filter, err := buildSubscriberFilter(filters, utils.UTCNow())
	if err != nil {
		return nil, err
	}
	return r.subscriberRepo.ListPage(ctx, filter, afterID, limit)
}

// buildSubscriberFilter maps segment filters onto one repository filter.
// Dimensions intersect because they land on separate filter fields; values
// within a dimension union because each field takes a value list.
func buildSubscriberFilter(filters models.SegmentFilterList, now time.Time) (models.SubscriberFilter, error) {
	active := true
	out := models.SubscriberFilter{Active: &active}

	for _, f := range filters {
		switch f.Type {
		case models.SegmentDimensionBrowser:
			out.Browsers = f.Values
		case models.SegmentDimensionOS:
			out.OSes = f.Values
		case models.SegmentDimensionCountry:
			out.Countries = f.Values
		case models.SegmentDimensionEngagement:
			ranges, err := engagementRanges(f.Values, now)
			if err != nil {
				return models.SubscriberFilter{}, err
			}
			out.LastSeenRanges = ranges
		default:
			return models.SubscriberFilter{}, fmt.Errorf("%w: %s", ErrUnknownSegmentDimension, f.Type)
		}
	}
	return out, nil
}

// engagementRanges maps bucket names to half-open last_seen_at ranges
func engagementRanges(values []string, now time.Time) ([]models.TimeRange, error) {
	activeCutoff := now.Add(-engagementActiveWindow)
	dormantCutoff := now.Add(-engagementDormantWindow)

	ranges := make([]models.TimeRange, 0, len(values))
	for _, v := range values {
		switch v {
		case models.EngagementActive:
			ranges = append(ranges, models.TimeRange{From: &activeCutoff})
		case models.EngagementDormant:
			ranges = append(ranges, models.TimeRange{From: &dormantCutoff, To: &activeCutoff})
		case models.EngagementInactive:
			ranges = append(ranges, models.TimeRange{To: &dormantCutoff})
		default:
			return nil, fmt.Errorf("%w: %s=%s", ErrUnknownSegmentValue, models.SegmentDimensionEngagement, v)
		}
	}
	return ranges, nil
}
