package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/models"
	"github.com/pushboard/pushboard/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign

	listDueErr error
}

func newFakeCampaignStore() *fakeCampaignStore {
	return &fakeCampaignStore{campaigns: make(map[uint]*models.Campaign)}
}

func (f *fakeCampaignStore) add(id uint, status models.CampaignStatus, sendAt *time.Time, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[id] = &models.Campaign{
		ID:        id,
		UUID:      uuid.New(),
		Name:      "test",
		Status:    status,
		SendAt:    sendAt,
		CreatedAt: createdAt,
	}
}

func (f *fakeCampaignStore) statusOf(id uint) models.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		return c.Status
	}
	return ""
}

func (f *fakeCampaignStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	if f.listDueErr != nil {
		return nil, f.listDueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Campaign
	for _, c := range f.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.SendAt != nil && !c.SendAt.After(now) {
			copied := *c
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) UpdateStatusIf(ctx context.Context, id uint, from, to models.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (f *fakeCampaignStore) DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
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

type fakeEnqueuer struct {
	mu    sync.Mutex
	wakes int
}

func (f *fakeEnqueuer) Wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakes++
}

func (f *fakeEnqueuer) wakeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wakes
}

func newTestScheduler(t *testing.T, store CampaignStore, enqueuer CampaignEnqueuer, cfg config.SchedulerConfig) *CampaignScheduler {
	t.Helper()
	cfg.LogDir = t.TempDir()
	return NewCampaignScheduler(store, enqueuer, cfg)
}

func TestSweepOncePromotesDueCampaigns(t *testing.T) {
	store := newFakeCampaignStore()
	enqueuer := &fakeEnqueuer{}
	now := utils.UTCNow()

	store.add(1, models.CampaignStatusScheduled, utils.ToPtr(now.Add(-time.Minute)), now)
	store.add(2, models.CampaignStatusScheduled, utils.ToPtr(now.Add(time.Hour)), now)
	store.add(3, models.CampaignStatusDraft, nil, now)

	s := newTestScheduler(t, store, enqueuer, config.SchedulerConfig{})
	s.SweepOnce(context.Background())

	assert.Equal(t, models.CampaignStatusQueued, store.statusOf(1))
	assert.Equal(t, models.CampaignStatusScheduled, store.statusOf(2))
	assert.Equal(t, models.CampaignStatusDraft, store.statusOf(3))
	assert.Equal(t, 1, enqueuer.wakeCount())
}

func TestSweepOnceNothingDueSkipsWake(t *testing.T) {
	store := newFakeCampaignStore()
	enqueuer := &fakeEnqueuer{}
	now := utils.UTCNow()

	store.add(1, models.CampaignStatusScheduled, utils.ToPtr(now.Add(time.Hour)), now)

	s := newTestScheduler(t, store, enqueuer, config.SchedulerConfig{})
	s.SweepOnce(context.Background())

	assert.Equal(t, 0, enqueuer.wakeCount())
}

func TestSweepOnceRaceLostIsBenign(t *testing.T) {
	store := newFakeCampaignStore()
	enqueuer := &fakeEnqueuer{}
	now := utils.UTCNow()

	store.add(1, models.CampaignStatusScheduled, utils.ToPtr(now.Add(-time.Minute)), now)

	s := newTestScheduler(t, store, enqueuer, config.SchedulerConfig{})

	// A concurrent actor cancelled the campaign after it was listed
	due, err := store.ListDue(context.Background(), utils.UTCNow(), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	won, err := store.UpdateStatusIf(context.Background(), 1, models.CampaignStatusScheduled, models.CampaignStatusCancelled)
	require.NoError(t, err)
	require.True(t, won)

	s.SweepOnce(context.Background())

	assert.Equal(t, models.CampaignStatusCancelled, store.statusOf(1))
	assert.Equal(t, 0, enqueuer.wakeCount())
}

func TestSweepOnceIdempotentAcrossInstances(t *testing.T) {
	store := newFakeCampaignStore()
	enqueuerA := &fakeEnqueuer{}
	enqueuerB := &fakeEnqueuer{}
	now := utils.UTCNow()

	store.add(1, models.CampaignStatusScheduled, utils.ToPtr(now.Add(-time.Minute)), now)

	a := newTestScheduler(t, store, enqueuerA, config.SchedulerConfig{})
	b := newTestScheduler(t, store, enqueuerB, config.SchedulerConfig{})

	a.SweepOnce(context.Background())
	b.SweepOnce(context.Background())

	assert.Equal(t, models.CampaignStatusQueued, store.statusOf(1))
	assert.Equal(t, 1, enqueuerA.wakeCount()+enqueuerB.wakeCount())
}

func TestCleanupDraftsOnce(t *testing.T) {
	store := newFakeCampaignStore()
	now := utils.UTCNow()

	store.add(1, models.CampaignStatusDraft, nil, now.Add(-48*time.Hour))
	store.add(2, models.CampaignStatusDraft, nil, now.Add(-time.Hour))
	store.add(3, models.CampaignStatusCompleted, nil, now.Add(-48*time.Hour))

	s := newTestScheduler(t, store, nil, config.SchedulerConfig{
		DraftRetention: 24 * time.Hour,
	})
	s.CleanupDraftsOnce(context.Background())

	assert.Equal(t, models.CampaignStatus(""), store.statusOf(1))
	assert.Equal(t, models.CampaignStatusDraft, store.statusOf(2))
	assert.Equal(t, models.CampaignStatusCompleted, store.statusOf(3))
}

func TestStartStops(t *testing.T) {
	store := newFakeCampaignStore()
	s := newTestScheduler(t, store, nil, config.SchedulerConfig{
		SweepInterval: 10 * time.Millisecond,
	})

	stop := s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	stop()
}
