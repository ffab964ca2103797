package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	domainsession "lab-device-hub/internal/domain/session"
)

// SessionRepository is an in-memory implementation of the session
// repository.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domainsession.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[uuid.UUID]*domainsession.Session)}
}

func (r *SessionRepository) Create(_ context.Context, s *domainsession.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := cloneSession(s)
	r.sessions[s.ID] = copied
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, sessionID uuid.UUID) (*domainsession.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domainsession.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *SessionRepository) Update(_ context.Context, s *domainsession.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return domainsession.ErrSessionNotFound
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *SessionRepository) GetActiveByDevice(_ context.Context, deviceID uuid.UUID) (*domainsession.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.DeviceID == deviceID && s.Status == domainsession.StatusActive {
			return cloneSession(s), nil
		}
	}
	return nil, domainsession.ErrSessionNotFound
}

func (r *SessionRepository) ListByDevice(_ context.Context, deviceID uuid.UUID, limit int) ([]*domainsession.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domainsession.Session, 0)
	for _, s := range r.sessions {
		if s.DeviceID == deviceID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *SessionRepository) CountByDevice(_ context.Context, deviceID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, s := range r.sessions {
		if s.DeviceID == deviceID {
			count++
		}
	}
	return count, nil
}

func cloneSession(s *domainsession.Session) *domainsession.Session {
	copied := *s
	copied.CommandIDs = append([]uuid.UUID(nil), s.CommandIDs...)
	copied.DataPointIDs = append([]uuid.UUID(nil), s.DataPointIDs...)
	return &copied
}
