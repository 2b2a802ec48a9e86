package businessflow

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pushboard/pushboard/app/dto"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCampaignRepo is an in-memory CampaignRepository with CAS semantics
type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
	nextID    uint

	// beforeCAS runs between the status check and the write, to simulate
	// a concurrent transition racing the caller
	beforeCAS func()
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign), nextID: 1}
}

func (f *fakeCampaignRepo) add(c *models.Campaign) *models.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.nextID
		f.nextID++
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	f.campaigns[c.ID] = c
	return c
}

func (f *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Campaign
	for _, c := range f.campaigns {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCampaignRepo) Save(ctx context.Context, entity *models.Campaign) error {
	f.add(entity)
	return nil
}

func (f *fakeCampaignRepo) SaveBatch(ctx context.Context, entities []*models.Campaign) error {
	for _, e := range entities {
		f.add(e)
	}
	return nil
}

func (f *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	matches, _ := f.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(matches)), nil
}

func (f *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id], nil
}

func (f *fakeCampaignRepo) ByUUID(ctx context.Context, u string) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.campaigns {
		if c.UUID.String() == u {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCampaignRepo) ByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	return f.ByFilter(ctx, models.CampaignFilter{Status: &status}, "", limit, offset)
}

func (f *fakeCampaignRepo) Update(ctx context.Context, campaign models.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[campaign.ID] = &campaign
	return nil
}

func (f *fakeCampaignRepo) UpdateStatusIf(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error) {
	if f.beforeCAS != nil {
		f.beforeCAS()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (f *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Campaign
	for _, c := range f.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.SendAt != nil && !c.SendAt.After(now) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCampaignRepo) RecordCompletion(ctx context.Context, id uint, status models.CampaignStatus, sent, failed int, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != models.CampaignStatusSending {
		return nil
	}
	c.Status = status
	c.SentCount = sent
	c.FailedCount = failed
	c.CompletedAt = &completedAt
	return nil
}

func (f *fakeCampaignRepo) DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, c := range f.campaigns {
		if c.Status == models.CampaignStatusDraft && c.CreatedAt.Before(cutoff) {
			delete(f.campaigns, id)
			deleted++
		}
	}
	return deleted, nil
}

func newTestCampaignFlow(campaignRepo *fakeCampaignRepo, subscriberRepo *fakeSubscriberRepo) CampaignFlow {
	catalog := newTestCatalog(subscriberRepo)
	resolver := NewAudienceResolver(subscriberRepo)
	return NewCampaignFlow(campaignRepo, catalog, resolver, nil, nil, &config.CacheConfig{DefaultTTL: 5 * time.Minute})
}

func TestPublishCampaignImmediate(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "launch",
		Message: models.PushMessage{Title: "New release"},
		Status:  models.CampaignStatusDraft,
	})

	resp, err := flow.PublishCampaign(context.Background(), c.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusQueued.String(), resp.Status)

	stored, _ := repo.ByID(context.Background(), c.ID)
	assert.Equal(t, models.CampaignStatusQueued, stored.Status)
}

func TestPublishCampaignWithFutureSendAt(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "launch",
		Message: models.PushMessage{Title: "New release"},
		Status:  models.CampaignStatusDraft,
		SendAt:  utils.ToPtr(time.Now().UTC().Add(time.Hour)),
	})

	resp, err := flow.PublishCampaign(context.Background(), c.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled.String(), resp.Status)
}

func TestPublishCampaignWithPastSendAtQueuesImmediately(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "launch",
		Message: models.PushMessage{Title: "New release"},
		Status:  models.CampaignStatusDraft,
		SendAt:  utils.ToPtr(time.Now().UTC().Add(-time.Hour)),
	})

	resp, err := flow.PublishCampaign(context.Background(), c.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusQueued.String(), resp.Status)
}

func TestPublishCampaignNonDraftRejected(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "launch",
		Message: models.PushMessage{Title: "New release"},
		Status:  models.CampaignStatusSending,
	})

	_, err := flow.PublishCampaign(context.Background(), c.UUID.String())
	assert.ErrorIs(t, err, ErrCampaignNotEditable)
}

func TestPublishCampaignInvalidMessageRejected(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "launch",
		Message: models.PushMessage{Title: strings.Repeat("x", models.MaxTitleLength+1)},
		Status:  models.CampaignStatusDraft,
	})

	_, err := flow.PublishCampaign(context.Background(), c.UUID.String())
	assert.ErrorIs(t, err, ErrTitleTooLong)

	stored, _ := repo.ByID(context.Background(), c.ID)
	assert.Equal(t, models.CampaignStatusDraft, stored.Status)
}

func TestPublishCampaignLosesRace(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "launch",
		Message: models.PushMessage{Title: "New release"},
		Status:  models.CampaignStatusDraft,
	})

	// Another caller cancels between our read and our conditional write
	repo.beforeCAS = func() {
		repo.mu.Lock()
		repo.campaigns[c.ID].Status = models.CampaignStatusCancelled
		repo.mu.Unlock()
	}

	_, err := flow.PublishCampaign(context.Background(), c.UUID.String())
	require.Error(t, err)

	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "CAMPAIGN_STATE_CHANGED", be.Code)
}

func TestCancelCampaign(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	tests := []struct {
		name    string
		status  models.CampaignStatus
		wantErr bool
	}{
		{"draft cancellable", models.CampaignStatusDraft, false},
		{"scheduled cancellable", models.CampaignStatusScheduled, false},
		{"queued not cancellable", models.CampaignStatusQueued, true},
		{"sending not cancellable", models.CampaignStatusSending, true},
		{"completed not cancellable", models.CampaignStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := repo.add(&models.Campaign{
				Name:    "c-" + tt.name,
				Message: models.PushMessage{Title: "t"},
				Status:  tt.status,
			})

			resp, err := flow.CancelCampaign(context.Background(), c.UUID.String())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCampaignNotCancellable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusCancelled.String(), resp.Status)
		})
	}
}

func TestCancelCampaignLosesRaceToSweeper(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	c := repo.add(&models.Campaign{
		Name:    "scheduled",
		Message: models.PushMessage{Title: "t"},
		Status:  models.CampaignStatusScheduled,
		SendAt:  utils.ToPtr(time.Now().UTC()),
	})

	repo.beforeCAS = func() {
		repo.mu.Lock()
		repo.campaigns[c.ID].Status = models.CampaignStatusQueued
		repo.mu.Unlock()
	}

	_, err := flow.CancelCampaign(context.Background(), c.UUID.String())
	assert.ErrorIs(t, err, ErrCampaignNotCancellable)

	stored, _ := repo.ByID(context.Background(), c.ID)
	assert.Equal(t, models.CampaignStatusQueued, stored.Status)
}

func TestGetCampaignNotFound(t *testing.T) {
	flow := newTestCampaignFlow(newFakeCampaignRepo(), newFakeSubscriberRepo())

	_, err := flow.GetCampaign(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	_, err = flow.GetCampaign(context.Background(), "")
	assert.ErrorIs(t, err, ErrCampaignUUIDRequired)
}

func TestListCampaignsValidation(t *testing.T) {
	flow := newTestCampaignFlow(newFakeCampaignRepo(), newFakeSubscriberRepo())

	_, err := flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Page: 0, Limit: 10})
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Page: 1, Limit: 0})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Page: 1, Limit: 200})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	bogus := "bogus"
	_, err = flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Page: 1, Limit: 10, Status: &bogus})
	assert.Error(t, err)
}

func TestListCampaignsFiltersByStatus(t *testing.T) {
	repo := newFakeCampaignRepo()
	flow := newTestCampaignFlow(repo, newFakeSubscriberRepo())

	repo.add(&models.Campaign{Name: "a", Message: models.PushMessage{Title: "t"}, Status: models.CampaignStatusDraft})
	repo.add(&models.Campaign{Name: "b", Message: models.PushMessage{Title: "t"}, Status: models.CampaignStatusCompleted})
	repo.add(&models.Campaign{Name: "c", Message: models.PushMessage{Title: "t"}, Status: models.CampaignStatusDraft})

	draft := models.CampaignStatusDraft.String()
	resp, err := flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{Page: 1, Limit: 10, Status: &draft})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	assert.Len(t, resp.Items, 2)
}

func TestCreateCampaignValidation(t *testing.T) {
	flow := newTestCampaignFlow(newFakeCampaignRepo(), newFakeSubscriberRepo())

	tests := []struct {
		name    string
		req     *dto.CreateCampaignRequest
		wantErr error
	}{
		{
			"name required",
			&dto.CreateCampaignRequest{Message: dto.PushMessageDTO{Title: "t"}},
			ErrCampaignNameRequired,
		},
		{
			"title required",
			&dto.CreateCampaignRequest{Name: "x", Message: dto.PushMessageDTO{Body: "b"}},
			ErrTitleRequired,
		},
		{
			"body too long",
			&dto.CreateCampaignRequest{Name: "x", Message: dto.PushMessageDTO{
				Title: "t",
				Body:  strings.Repeat("b", models.MaxBodyLength+1),
			}},
			ErrBodyTooLong,
		},
		{
			"duplicate segment dimension",
			&dto.CreateCampaignRequest{Name: "x", Message: dto.PushMessageDTO{Title: "t"}, Segments: []dto.SegmentFilterDTO{
				{Type: "browser", Values: []string{"chrome"}},
				{Type: "browser", Values: []string{"firefox"}},
			}},
			ErrDuplicateSegmentDimension,
		},
		{
			"unknown segment value",
			&dto.CreateCampaignRequest{Name: "x", Message: dto.PushMessageDTO{Title: "t"}, Segments: []dto.SegmentFilterDTO{
				{Type: "os", Values: []string{"beos"}},
			}},
			ErrUnknownSegmentValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.CreateCampaign(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPreviewAudience(t *testing.T) {
	subscriberRepo := newFakeSubscriberRepo()
	now := time.Now().UTC()
	subscriberRepo.add("chrome", "android", "US", utils.ToPtr(now), true)
	subscriberRepo.add("firefox", "windows", "DE", utils.ToPtr(now), true)

	flow := newTestCampaignFlow(newFakeCampaignRepo(), subscriberRepo)

	resp, err := flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{
		Segments: []dto.SegmentFilterDTO{{Type: "browser", Values: []string{"chrome"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Count)

	_, err = flow.PreviewAudience(context.Background(), &dto.PreviewAudienceRequest{
		Segments: []dto.SegmentFilterDTO{{Type: "device", Values: []string{"phone"}}},
	})
	assert.ErrorIs(t, err, ErrUnknownSegmentDimension)
}

func TestPreviewCountKeyNormalization(t *testing.T) {
	a := models.SegmentFilterList{
		{Type: models.SegmentDimensionOS, Values: []string{"ios", "android"}},
		{Type: models.SegmentDimensionBrowser, Values: []string{"chrome"}},
	}
	b := models.SegmentFilterList{
		{Type: models.SegmentDimensionBrowser, Values: []string{"chrome"}},
		{Type: models.SegmentDimensionOS, Values: []string{"android", "ios"}},
	}
	c := models.SegmentFilterList{
		{Type: models.SegmentDimensionBrowser, Values: []string{"firefox"}},
	}

	assert.Equal(t, previewCountKey(a), previewCountKey(b))
	assert.NotEqual(t, previewCountKey(a), previewCountKey(c))
}
