package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sentra/internal/redact"
	id "sentra/pkg/domain"
	"sentra/pkg/platform/sentinel"
)

// InMemoryStore keeps the audit trail in process memory. It intentionally
// favors clarity over performance and backs unit tests and local development.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return nil
	}
	s.events[event.ID] = event
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, eventID id.EventID) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.events[eventID]; ok {
		return event, nil
	}
	return Event{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(ctx context.Context, filter Filter) ([]Event, int64, error) {
	return s.page(s.match(filter, false), filter)
}

func (s *InMemoryStore) Search(ctx context.Context, filter Filter) ([]Event, int64, error) {
	return s.page(s.match(filter, true), filter)
}

func (s *InMemoryStore) Count(_ context.Context, filter Filter) (int64, error) {
	return int64(len(s.match(filter, filter.HasSearch()))), nil
}

func (s *InMemoryStore) LastActivity(_ context.Context, filter Filter) (time.Time, error) {
	matched := s.match(filter, false)
	if len(matched) == 0 {
		return time.Time{}, sentinel.ErrNotFound
	}
	return matched[0].CreatedAt, nil
}

func (s *InMemoryStore) ReplaceDetails(_ context.Context, eventID id.EventID, details redact.Details) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	event.Details = details
	s.events[eventID] = event
	return nil
}

// match returns all matching events sorted by CreatedAt descending.
func (s *InMemoryStore) match(filter Filter, withSearch bool) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	from := filter.EffectiveFrom()
	to := filter.EffectiveTo(now)
	term := filter.SearchTerm()

	var matched []Event
	for _, e := range s.events {
		if e.TenantID != filter.TenantID {
			continue
		}
		if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
			continue
		}
		if !filter.IncludeSystemActions && e.IsSystemGenerated() {
			continue
		}
		if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		if filter.HasActionTypes() && !containsFold(filter.ActionTypes, e.Action) {
			continue
		}
		if len(filter.ActorEmails) > 0 && !containsFold(filter.ActorEmails, e.ActorEmail) {
			continue
		}
		if withSearch && term != "" && !matchesTerm(e, term) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

func (s *InMemoryStore) page(matched []Event, filter Filter) ([]Event, int64, error) {
	filter = filter.Normalized()
	total := int64(len(matched))

	start := filter.Page * filter.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return append([]Event{}, matched[start:end]...), total, nil
}

func matchesTerm(e Event, term string) bool {
	for _, candidate := range []string{
		e.Action, e.EventType, e.Description, e.ResourceType, e.ResourceID, e.ActorEmail,
	} {
		if strings.Contains(strings.ToLower(candidate), term) {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
