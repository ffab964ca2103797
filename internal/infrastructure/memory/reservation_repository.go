package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainreservation "lab-device-hub/internal/domain/reservation"
)

// ReservationRepository is an in-memory implementation of the
// reservation repository.
type ReservationRepository struct {
	mu           sync.RWMutex
	reservations map[uuid.UUID]*domainreservation.Reservation
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{reservations: make(map[uuid.UUID]*domainreservation.Reservation)}
}

func (r *ReservationRepository) Create(_ context.Context, res *domainreservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *res
	r.reservations[res.ID] = &copied
	return nil
}

func (r *ReservationRepository) GetByID(_ context.Context, reservationID uuid.UUID) (*domainreservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, domainreservation.ErrReservationNotFound
	}
	copied := *res
	return &copied, nil
}

func (r *ReservationRepository) Update(_ context.Context, res *domainreservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reservations[res.ID]; !ok {
		return domainreservation.ErrReservationNotFound
	}
	res.UpdatedAt = time.Now()
	copied := *res
	r.reservations[res.ID] = &copied
	return nil
}

func (r *ReservationRepository) ListByDevice(_ context.Context, deviceID uuid.UUID, statuses []domainreservation.Status) ([]*domainreservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domainreservation.Reservation, 0)
	for _, res := range r.reservations {
		if res.DeviceID != deviceID {
			continue
		}
		if len(statuses) > 0 && !statusIn(res.Status, statuses) {
			continue
		}
		copied := *res
		out = append(out, &copied)
	}
	sortByStart(out)
	return out, nil
}

func (r *ReservationRepository) ListApprovedOverlapping(_ context.Context, deviceID uuid.UUID, start, end time.Time) ([]*domainreservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domainreservation.Reservation, 0)
	for _, res := range r.reservations {
		if res.DeviceID != deviceID || res.Status != domainreservation.StatusApproved {
			continue
		}
		if res.Overlaps(start, end) {
			copied := *res
			out = append(out, &copied)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *ReservationRepository) ListDue(_ context.Context, now time.Time) ([]*domainreservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domainreservation.Reservation, 0)
	for _, res := range r.reservations {
		if res.Status == domainreservation.StatusApproved && res.SessionID == nil && !res.StartAt.After(now) && res.EndAt.After(now) {
			copied := *res
			out = append(out, &copied)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *ReservationRepository) ListExpired(_ context.Context, now time.Time) ([]*domainreservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domainreservation.Reservation, 0)
	for _, res := range r.reservations {
		if res.Status == domainreservation.StatusApproved && !res.EndAt.After(now) {
			copied := *res
			out = append(out, &copied)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *ReservationRepository) CountActiveByDevice(_ context.Context, deviceID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, res := range r.reservations {
		if res.DeviceID != deviceID {
			continue
		}
		if res.Status == domainreservation.StatusPending || res.Status == domainreservation.StatusApproved {
			count++
		}
	}
	return count, nil
}

func statusIn(status domainreservation.Status, statuses []domainreservation.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortByStart(out []*domainreservation.Reservation) {
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
}
