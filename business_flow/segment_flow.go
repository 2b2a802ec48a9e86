// Package businessflow contains the core business logic and use cases for segment catalog workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pushboard/pushboard/app/dto"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/repository"
	"github.com/redis/go-redis/v9"
)

// Fixed-enum dimension values. Country is data-derived and not listed here.
var (
	browserValues = []string{"chrome", "firefox", "safari", "edge", "opera", "samsung"}
	osValues      = []string{"android", "ios", "windows", "macos", "linux", "chromeos"}
	engagementValues = []string{
		models.EngagementActive,
		models.EngagementDormant,
		models.EngagementInactive,
	}

	dimensionLabels = map[models.SegmentDimension]string{
		models.SegmentDimensionBrowser:    "Browser",
		models.SegmentDimensionOS:         "Operating System",
		models.SegmentDimensionCountry:    "Country",
		models.SegmentDimensionEngagement: "Engagement",
	}
)

const countriesCacheKey = "segment:countries"

// SegmentCatalogFlow exposes the filterable dimensions and their admissible values
type SegmentCatalogFlow interface {
	ListDimensions(ctx context.Context) (*dto.ListSegmentsResponse, error)
	DimensionValues(ctx context.Context, dimension string) (*dto.SegmentValuesResponse, error)

	// ValidateFilters checks a filter set against the catalog: known
	// dimensions only, each at most once, and known values for the
	// fixed-enum dimensions.
	ValidateFilters(ctx context.Context, filters models.SegmentFilterList) error
}

// SegmentCatalogFlowImpl implements the segment catalog business flow
type SegmentCatalogFlowImpl struct {
	subscriberRepo repository.SubscriberRepository
	rc             *redis.Client
	cacheConfig    *config.CacheConfig
}

// NewSegmentCatalogFlow creates a new segment catalog flow instance
func NewSegmentCatalogFlow(
	subscriberRepo repository.SubscriberRepository,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) SegmentCatalogFlow {
	return &SegmentCatalogFlowImpl{
		subscriberRepo: subscriberRepo,
		rc:             rc,
		cacheConfig:    cacheConfig,
	}
}

func redisKey(cfg config.CacheConfig, key string) string {
	if cfg.RedisPrefix == "" {
		return key
	}
	return cfg.RedisPrefix + ":" + key
}

// ListDimensions returns the full segment catalog
func (s *SegmentCatalogFlowImpl) ListDimensions(ctx context.Context) (*dto.ListSegmentsResponse, error) {
	countries, err := s.countries(ctx)
	if err != nil {
		return nil, NewBusinessError("SEGMENT_CATALOG_FAILED", "Failed to build segment catalog", err)
	}

	dimensions := []dto.SegmentDimensionDTO{
		{Type: models.SegmentDimensionBrowser.String(), Label: dimensionLabels[models.SegmentDimensionBrowser], Values: browserValues},
		{Type: models.SegmentDimensionOS.String(), Label: dimensionLabels[models.SegmentDimensionOS], Values: osValues},
		{Type: models.SegmentDimensionCountry.String(), Label: dimensionLabels[models.SegmentDimensionCountry], Values: countries},
		{Type: models.SegmentDimensionEngagement.String(), Label: dimensionLabels[models.SegmentDimensionEngagement], Values: engagementValues},
	}

	return &dto.ListSegmentsResponse{Dimensions: dimensions}, nil
}

// DimensionValues returns the admissible values of one dimension
func (s *SegmentCatalogFlowImpl) DimensionValues(ctx context.Context, dimension string) (*dto.SegmentValuesResponse, error) {
	var values []string

	switch models.SegmentDimension(dimension) {
	case models.SegmentDimensionBrowser:
		values = browserValues
	case models.SegmentDimensionOS:
		values = osValues
	case models.SegmentDimensionEngagement:
		values = engagementValues
	case models.SegmentDimensionCountry:
		countries, err := s.countries(ctx)
		if err != nil {
			return nil, NewBusinessError("SEGMENT_VALUES_FAILED", "Failed to list segment values", err)
		}
		values = countries
	default:
		return nil, NewBusinessError("SEGMENT_DIMENSION_UNKNOWN", fmt.Sprintf("Unknown segment dimension: %s", dimension), ErrUnknownSegmentDimension)
	}

	return &dto.SegmentValuesResponse{Type: dimension, Values: values}, nil
}

// ValidateFilters checks a filter set against the catalog
func (s *SegmentCatalogFlowImpl) ValidateFilters(ctx context.Context, filters models.SegmentFilterList) error {
	if dup := filters.DuplicateDimension(); dup != "" {
		return NewBusinessError("SEGMENT_DIMENSION_DUPLICATE", fmt.Sprintf("Segment dimension %s appears more than once", dup), ErrDuplicateSegmentDimension)
	}

	for _, f := range filters {
		switch f.Type {
		case models.SegmentDimensionBrowser:
			if err := checkKnownValues(f, browserValues); err != nil {
				return err
			}
		case models.SegmentDimensionOS:
			if err := checkKnownValues(f, osValues); err != nil {
				return err
			}
		case models.SegmentDimensionEngagement:
			if err := checkKnownValues(f, engagementValues); err != nil {
				return err
			}
		case models.SegmentDimensionCountry:
			// Country values come from the data; an unobserved code simply
			// matches nobody, so there is nothing to reject here.
		default:
			return NewBusinessError("SEGMENT_DIMENSION_UNKNOWN", fmt.Sprintf("Unknown segment dimension: %s", f.Type), ErrUnknownSegmentDimension)
		}
	}
	return nil
}

func checkKnownValues(f models.SegmentFilter, known []string) error {
	for _, v := range f.Values {
		found := false
		for _, k := range known {
			if v == k {
				found = true
				break
			}
		}
		if !found {
			return NewBusinessError("SEGMENT_VALUE_UNKNOWN", fmt.Sprintf("Unknown value %q for dimension %s", v, f.Type), ErrUnknownSegmentValue)
		}
	}
	return nil
}

// countries returns the data-derived country values, cached in redis for the
// configured TTL so the catalog endpoint does not hit a DISTINCT scan per call.
func (s *SegmentCatalogFlowImpl) countries(ctx context.Context) ([]string, error) {
	cacheKey := redisKey(*s.cacheConfig, countriesCacheKey)

	if s.rc != nil {
		if bs, err := s.rc.Get(ctx, cacheKey).Bytes(); err == nil && len(bs) > 0 {
			var out []string
			if err := json.Unmarshal(bs, &out); err == nil {
				return out, nil
			}
		}
	}

	countries, err := s.subscriberRepo.DistinctCountries(ctx)
	if err != nil {
		return nil, err
	}

	if s.rc != nil {
		if bs, err := json.Marshal(countries); err == nil {
			_ = s.rc.Set(ctx, cacheKey, bs, s.cacheConfig.DefaultTTL).Err()
		}
	}
	return countries, nil
}
