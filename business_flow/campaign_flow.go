// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pushboard/pushboard/app/dto"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/repository"
	"github.com/pushboard/pushboard/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CampaignFlow handles the campaign lifecycle business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error)
	UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest) (*dto.GetCampaignResponse, error)
	GetCampaign(ctx context.Context, uuid string) (*dto.GetCampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	PublishCampaign(ctx context.Context, uuid string) (*dto.PublishCampaignResponse, error)
	CancelCampaign(ctx context.Context, uuid string) (*dto.GetCampaignResponse, error)
	PreviewAudience(ctx context.Context, req *dto.PreviewAudienceRequest) (*dto.PreviewAudienceResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	catalog      SegmentCatalogFlow
	resolver     AudienceResolver
	db           *gorm.DB
	rc           *redis.Client
	cacheConfig  *config.CacheConfig
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	catalog SegmentCatalogFlow,
	resolver AudienceResolver,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		catalog:      catalog,
		resolver:     resolver,
		db:           db,
		rc:           rc,
		cacheConfig:  cacheConfig,
	}
}

// CreateCampaign creates a new campaign draft
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error) {
	if req.Name == "" {
		return nil, NewBusinessError("CAMPAIGN_NAME_REQUIRED", "Campaign name is required", ErrCampaignNameRequired)
	}

	message := req.Message.ToModel()
	if err := validateMessage(message); err != nil {
		return nil, err
	}

	segments := dto.SegmentFiltersToModel(req.Segments)
	if err := s.catalog.ValidateFilters(ctx, segments); err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		Name:     req.Name,
		Message:  message,
		Segments: segments,
		Status:   models.CampaignStatusDraft,
		SendAt:   req.SendAt,
	}

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.campaignRepo.Save(txCtx, campaign)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	return &dto.CreateCampaignResponse{UUID: campaign.UUID.String()}, nil
}

// UpdateCampaign applies partial edits to a draft or cancelled campaign.
// Editing a cancelled campaign moves it back to draft.
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest) (*dto.GetCampaignResponse, error) {
	campaign, err := s.findCampaign(ctx, req.UUID)
	if err != nil {
		return nil, err
	}

	if !campaign.IsEditable() {
		return nil, NewBusinessError("CAMPAIGN_NOT_EDITABLE", fmt.Sprintf("Campaign in status %s cannot be edited", campaign.Status), ErrCampaignNotEditable)
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, NewBusinessError("CAMPAIGN_NAME_REQUIRED", "Campaign name is required", ErrCampaignNameRequired)
		}
		campaign.Name = *req.Name
	}
	if req.Message != nil {
		message := req.Message.ToModel()
		if err := validateMessage(message); err != nil {
			return nil, err
		}
		campaign.Message = message
	}
	if req.Segments != nil {
		segments := dto.SegmentFiltersToModel(req.Segments)
		if err := s.catalog.ValidateFilters(ctx, segments); err != nil {
			return nil, err
		}
		campaign.Segments = segments
	}
	if req.ClearSendAt {
		campaign.SendAt = nil
	} else if req.SendAt != nil {
		campaign.SendAt = req.SendAt
	}

	if campaign.Status == models.CampaignStatusCancelled {
		campaign.Status = models.CampaignStatusDraft
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.campaignRepo.Update(txCtx, *campaign)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Campaign update failed", err)
	}

	resp := dto.NewGetCampaignResponse(campaign)
	return &resp, nil
}

// GetCampaign retrieves one campaign by UUID
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, uuid string) (*dto.GetCampaignResponse, error) {
	campaign, err := s.findCampaign(ctx, uuid)
	if err != nil {
		return nil, err
	}

	resp := dto.NewGetCampaignResponse(campaign)
	return &resp, nil
}

// ListCampaigns retrieves campaigns with pagination, newest first
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	if req.Page < 1 {
		return nil, NewBusinessError("INVALID_PAGE", "Page must be at least 1", ErrInvalidPage)
	}
	if req.Limit < 1 || req.Limit > 100 {
		return nil, NewBusinessError("INVALID_LIMIT", "Limit must be between 1 and 100", ErrInvalidLimit)
	}

	filter := models.CampaignFilter{}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_STATUS", fmt.Sprintf("Unknown campaign status: %s", *req.Status), nil)
		}
		filter.Status = &status
	}

	offset := (req.Page - 1) * req.Limit
	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", req.Limit, offset)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_COUNT_FAILED", "Failed to count campaigns", err)
	}

	items := make([]dto.GetCampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, dto.NewGetCampaignResponse(c))
	}

	return &dto.ListCampaignsResponse{
		Items: items,
		Total: total,
		Page:  req.Page,
		Limit: req.Limit,
	}, nil
}

// PublishCampaign moves a draft into the delivery pipeline. A future send_at
// lands it in scheduled for the sweeper to pick up; otherwise it is queued
// for immediate dispatch.
func (s *CampaignFlowImpl) PublishCampaign(ctx context.Context, uuid string) (*dto.PublishCampaignResponse, error) {
	campaign, err := s.findCampaign(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusDraft {
		return nil, NewBusinessError("CAMPAIGN_NOT_EDITABLE", fmt.Sprintf("Campaign in status %s cannot be published", campaign.Status), ErrCampaignNotEditable)
	}
	if err := validateMessage(campaign.Message); err != nil {
		return nil, err
	}
	if err := s.catalog.ValidateFilters(ctx, campaign.Segments); err != nil {
		return nil, err
	}

	target := models.CampaignStatusQueued
	if campaign.SendAt != nil && campaign.SendAt.After(utils.UTCNow()) {
		target = models.CampaignStatusScheduled
	}

	won, err := s.campaignRepo.UpdateStatusIf(ctx, campaign.ID, models.CampaignStatusDraft, target)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_PUBLISH_FAILED", "Campaign publish failed", err)
	}
	if !won {
		return nil, NewBusinessError("CAMPAIGN_STATE_CHANGED", "Campaign state changed concurrently", ErrCampaignNotEditable)
	}

	return &dto.PublishCampaignResponse{
		UUID:   campaign.UUID.String(),
		Status: target.String(),
	}, nil
}

// CancelCampaign cancels a draft or scheduled campaign. Campaigns already
// queued or beyond are owned by the delivery pipeline and cannot be recalled.
func (s *CampaignFlowImpl) CancelCampaign(ctx context.Context, uuid string) (*dto.GetCampaignResponse, error) {
	campaign, err := s.findCampaign(ctx, uuid)
	if err != nil {
		return nil, err
	}

	if !campaign.IsCancellable() {
		return nil, NewBusinessError("CAMPAIGN_NOT_CANCELLABLE", fmt.Sprintf("Campaign in status %s cannot be cancelled", campaign.Status), ErrCampaignNotCancellable)
	}

	won, err := s.campaignRepo.UpdateStatusIf(ctx, campaign.ID, campaign.Status, models.CampaignStatusCancelled)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CANCEL_FAILED", "Campaign cancellation failed", err)
	}
	if !won {
		// The sweeper may have queued the campaign between our read and the
		// write. The cancellation loses and the send proceeds.
		return nil, NewBusinessError("CAMPAIGN_NOT_CANCELLABLE", "Campaign entered the delivery pipeline before cancellation", ErrCampaignNotCancellable)
	}

	campaign.Status = models.CampaignStatusCancelled
	resp := dto.NewGetCampaignResponse(campaign)
	return &resp, nil
}

// PreviewAudience returns the current audience size for a filter set.
// Counts are cached in redis for the configured TTL, keyed by the normalized
// filter set so reordered filters and values hit the same entry.
func (s *CampaignFlowImpl) PreviewAudience(ctx context.Context, req *dto.PreviewAudienceRequest) (*dto.PreviewAudienceResponse, error) {
	segments := dto.SegmentFiltersToModel(req.Segments)
	if err := s.catalog.ValidateFilters(ctx, segments); err != nil {
		return nil, err
	}

	var cacheKey string
	if s.rc != nil {
		cacheKey = redisKey(*s.cacheConfig, previewCountKey(segments))
		if cached, err := s.rc.Get(ctx, cacheKey).Int64(); err == nil {
			return &dto.PreviewAudienceResponse{Count: cached}, nil
		}
	}

	count, err := s.resolver.Count(ctx, segments)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_PREVIEW_FAILED", "Failed to preview audience", err)
	}

	if s.rc != nil {
		_ = s.rc.Set(ctx, cacheKey, count, s.cacheConfig.DefaultTTL).Err()
	}

	return &dto.PreviewAudienceResponse{Count: count}, nil
}

// previewCountKey derives a cache key that is stable under filter and value
// ordering.
func previewCountKey(filters models.SegmentFilterList) string {
	normalized := make(models.SegmentFilterList, len(filters))
	copy(normalized, filters)
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Type < normalized[j].Type })
	for i := range normalized {
		values := append([]string(nil), normalized[i].Values...)
		sort.Strings(values)
		normalized[i].Values = values
	}

	bs, _ := json.Marshal(normalized)
	sum := sha256.Sum256(bs)
	return "audience:count:" + hex.EncodeToString(sum[:])
}

func (s *CampaignFlowImpl) findCampaign(ctx context.Context, uuid string) (*models.Campaign, error) {
	if uuid == "" {
		return nil, NewBusinessError("CAMPAIGN_UUID_REQUIRED", "Campaign UUID is required", ErrCampaignUUIDRequired)
	}

	campaign, err := s.campaignRepo.ByUUID(ctx, uuid)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

func validateMessage(m models.PushMessage) error {
	if m.Title == "" {
		return NewBusinessError("PUSH_TITLE_REQUIRED", "Push title is required", ErrTitleRequired)
	}
	if len([]rune(m.Title)) > models.MaxTitleLength {
		return NewBusinessError("PUSH_TITLE_TOO_LONG", fmt.Sprintf("Push title exceeds %d characters", models.MaxTitleLength), ErrTitleTooLong)
	}
	if len([]rune(m.Body)) > models.MaxBodyLength {
		return NewBusinessError("PUSH_BODY_TOO_LONG", fmt.Sprintf("Push body exceeds %d characters", models.MaxBodyLength), ErrBodyTooLong)
	}
	return nil
}
