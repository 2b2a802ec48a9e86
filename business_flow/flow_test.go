package businessflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pushboard/pushboard/models"
)

// fakeSubscriberRepo is an in-memory SubscriberRepository that mirrors the
// SQL filter semantics: value lists union within a field, fields intersect.
type fakeSubscriberRepo struct {
	mu          sync.Mutex
	subscribers []*models.Subscriber
	nextID      int64

	distinctCountriesCalls int
}

func newFakeSubscriberRepo() *fakeSubscriberRepo {
	return &fakeSubscriberRepo{nextID: 1}
}

func (f *fakeSubscriberRepo) add(browser, os, country string, lastSeen *time.Time, active bool) *models.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &models.Subscriber{
		ID:         f.nextID,
		UUID:       uuid.New(),
		Endpoint:   "https://push.example.org/send/" + uuid.NewString(),
		P256dh:     "p256dh",
		Auth:       "auth",
		Browser:    browser,
		OS:         os,
		Country:    country,
		LastSeenAt: lastSeen,
		Active:     active,
	}
	f.nextID++
	f.subscribers = append(f.subscribers, sub)
	return sub
}

func matchesRange(lastSeen *time.Time, r models.TimeRange) bool {
	if r.From != nil {
		if lastSeen == nil || lastSeen.Before(*r.From) {
			return false
		}
	}
	if r.To != nil {
		// Never-seen subscribers fall into the unbounded-below bucket
		if lastSeen != nil && !lastSeen.Before(*r.To) {
			return false
		}
	}
	return true
}

func matchesFilter(s *models.Subscriber, filter models.SubscriberFilter) bool {
	if filter.Active != nil && s.Active != *filter.Active {
		return false
	}
	if len(filter.Browsers) > 0 && !contains(filter.Browsers, s.Browser) {
		return false
	}
	if len(filter.OSes) > 0 && !contains(filter.OSes, s.OS) {
		return false
	}
	if len(filter.Countries) > 0 && !contains(filter.Countries, s.Country) {
		return false
	}
	if len(filter.LastSeenRanges) > 0 {
		matched := false
		for _, r := range filter.LastSeenRanges {
			if matchesRange(s.LastSeenAt, r) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (f *fakeSubscriberRepo) ByFilter(ctx context.Context, filter models.SubscriberFilter, orderBy string, limit, offset int) ([]*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Subscriber
	for _, s := range f.subscribers {
		if matchesFilter(s, filter) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriberRepo) Save(ctx context.Context, entity *models.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subscribers {
		if s.ID == entity.ID {
			f.subscribers[i] = entity
			return nil
		}
	}
	f.subscribers = append(f.subscribers, entity)
	return nil
}

func (f *fakeSubscriberRepo) SaveBatch(ctx context.Context, entities []*models.Subscriber) error {
	for _, e := range entities {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSubscriberRepo) Count(ctx context.Context, filter models.SubscriberFilter) (int64, error) {
	matches, _ := f.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(matches)), nil
}

func (f *fakeSubscriberRepo) ByID(ctx context.Context, id int64) (*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscribers {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriberRepo) ListPage(ctx context.Context, filter models.SubscriberFilter, afterID int64, limit int) ([]*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Subscriber
	for _, s := range f.subscribers {
		if s.ID > afterID && matchesFilter(s, filter) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSubscriberRepo) DistinctCountries(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distinctCountriesCalls++
	seen := make(map[string]bool)
	var out []string
	for _, s := range f.subscribers {
		if s.Active && !seen[s.Country] {
			seen[s.Country] = true
			out = append(out, s.Country)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeSubscriberRepo) Deactivate(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscribers {
		if s.ID == id {
			s.Active = false
			return nil
		}
	}
	return nil
}
