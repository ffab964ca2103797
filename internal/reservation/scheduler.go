package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lab-device-hub/internal/config"
	domaindevice "lab-device-hub/internal/domain/device"
	domainreservation "lab-device-hub/internal/domain/reservation"
	"lab-device-hub/internal/logger"
	"lab-device-hub/internal/notify"
	"lab-device-hub/internal/session"
	apperrors "lab-device-hub/pkg/errors"
)

// Scheduler manages future time-slot bookings and promotes approved
// reservations into exclusive sessions when their window opens.
type Scheduler struct {
	reservations domainreservation.Repository
	devices      domaindevice.Repository
	sessions     *session.Manager
	notifier     notify.Notifier
	cfg          config.ReservationConfig

	// approveMu serializes approvals so two overlapping windows cannot
	// both pass the conflict check.
	approveMu sync.Mutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(
	reservations domainreservation.Repository,
	devices domaindevice.Repository,
	sessions *session.Manager,
	notifier notify.Notifier,
	cfg config.ReservationConfig,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		reservations: reservations,
		devices:      devices,
		sessions:     sessions,
		notifier:     notifier,
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Request books a pending reservation for [start, end). With
// auto-approval configured the approval workflow runs inline.
func (s *Scheduler) Request(ctx context.Context, deviceID uuid.UUID, requesterID string, start, end time.Time) (*domainreservation.Reservation, error) {
	if !start.Before(end) {
		return nil, apperrors.ErrInvalidWindow
	}
	if end.Before(time.Now()) {
		return nil, fmt.Errorf("%w: window already elapsed", apperrors.ErrInvalidWindow)
	}

	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	if dev.Retired {
		return nil, apperrors.ErrDeviceRetired
	}

	r := &domainreservation.Reservation{
		ID:          uuid.New(),
		DeviceID:    deviceID,
		RequesterID: requesterID,
		StartAt:     start,
		EndAt:       end,
		Status:      domainreservation.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.reservations.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	logger.Info("Reservation requested",
		zap.String("reservation_id", r.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.Time("start_at", start),
		zap.Time("end_at", end),
		zap.String("event", "reservation_requested"),
	)

	if s.cfg.AutoApprove {
		return s.Approve(ctx, r.ID)
	}
	return r, nil
}

// Approve moves a pending reservation to approved, rejecting with
// ErrOverlap when any approved reservation for the device intersects
// the window.
func (s *Scheduler) Approve(ctx context.Context, reservationID uuid.UUID) (*domainreservation.Reservation, error) {
	s.approveMu.Lock()
	defer s.approveMu.Unlock()

	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, apperrors.ErrReservationNotFound
	}
	if r.Status != domainreservation.StatusPending {
		return nil, fmt.Errorf("%w: reservation is %s", apperrors.ErrInvalidTransition, r.Status)
	}

	conflicts, err := s.reservations.ListApprovedOverlapping(ctx, r.DeviceID, r.StartAt, r.EndAt)
	if err != nil {
		return nil, fmt.Errorf("overlap check failed: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, fmt.Errorf("%w: conflicts with reservation %s", apperrors.ErrOverlap, conflicts[0].ID)
	}

	r.Status = domainreservation.StatusApproved
	r.UpdatedAt = time.Now()
	if err := s.reservations.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to persist approval: %w", err)
	}

	logger.Info("Reservation approved",
		zap.String("reservation_id", r.ID.String()),
		zap.String("device_id", r.DeviceID.String()),
		zap.String("event", "reservation_approved"),
	)
	s.notifier.ReservationApproved(r)

	return r, nil
}

// Cancel withdraws a pending or approved reservation before its start.
func (s *Scheduler) Cancel(ctx context.Context, reservationID uuid.UUID) (*domainreservation.Reservation, error) {
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, apperrors.ErrReservationNotFound
	}
	if r.Status != domainreservation.StatusPending && r.Status != domainreservation.StatusApproved {
		return nil, fmt.Errorf("%w: reservation is %s", apperrors.ErrInvalidTransition, r.Status)
	}
	if r.SessionID != nil {
		return nil, fmt.Errorf("%w: reservation already promoted", apperrors.ErrInvalidTransition)
	}

	r.Status = domainreservation.StatusCancelled
	r.UpdatedAt = time.Now()
	if err := s.reservations.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}
	return r, nil
}

// Start launches the periodic sweep.
func (s *Scheduler) Start() {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.ctx)
			}
		}
	}()
}

// Stop halts the sweep loop.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Sweep promotes due reservations into sessions and completes expired
// ones. Exported so tests and operators can run a pass on demand.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := time.Now()

	due, err := s.reservations.ListDue(ctx, now)
	if err != nil {
		logger.Error("Reservation sweep failed to list due reservations", zap.Error(err))
	}
	for _, r := range due {
		s.promote(ctx, r)
	}

	expired, err := s.reservations.ListExpired(ctx, now)
	if err != nil {
		logger.Error("Reservation sweep failed to list expired reservations", zap.Error(err))
	}
	for _, r := range expired {
		s.complete(ctx, r)
	}
}

// promote opens the session for a due reservation. If the device is
// occupied out-of-band the reservation is rejected with the cause, not
// silently dropped.
func (s *Scheduler) promote(ctx context.Context, r *domainreservation.Reservation) {
	sess, err := s.sessions.OpenForReservation(ctx, r.DeviceID, r.RequesterID, r.ID)
	if err != nil {
		note := fmt.Sprintf("promotion failed: %v", err)
		r.Status = domainreservation.StatusRejected
		r.Note = &note
		r.UpdatedAt = time.Now()
		if uerr := s.reservations.Update(ctx, r); uerr != nil {
			logger.Error("Failed to persist reservation rejection",
				zap.String("reservation_id", r.ID.String()),
				zap.Error(uerr),
			)
		}
		logger.Warn("Reservation promotion failed",
			zap.String("reservation_id", r.ID.String()),
			zap.String("device_id", r.DeviceID.String()),
			zap.Error(err),
			zap.String("event", "reservation_rejected"),
		)
		s.notifier.ReservationRejected(r, note)
		return
	}

	r.SessionID = &sess.ID
	r.UpdatedAt = time.Now()
	if err := s.reservations.Update(ctx, r); err != nil {
		logger.Error("Failed to persist reservation promotion",
			zap.String("reservation_id", r.ID.String()),
			zap.Error(err),
		)
	}

	logger.Info("Reservation promoted to session",
		zap.String("reservation_id", r.ID.String()),
		zap.String("session_id", sess.ID.String()),
		zap.String("event", "reservation_promoted"),
	)
}

// complete closes the reservation's session if still open and marks the
// reservation completed.
func (s *Scheduler) complete(ctx context.Context, r *domainreservation.Reservation) {
	if r.SessionID != nil {
		if active, ok := s.sessions.ActiveSession(r.DeviceID); ok && active.ID == *r.SessionID {
			if _, err := s.sessions.Close(ctx, *r.SessionID, session.ReasonWindowExpired); err != nil {
				logger.Warn("Failed to close session at window end",
					zap.String("session_id", r.SessionID.String()),
					zap.Error(err),
				)
			}
		}
	}

	r.Status = domainreservation.StatusCompleted
	r.UpdatedAt = time.Now()
	if err := s.reservations.Update(ctx, r); err != nil {
		logger.Error("Failed to persist reservation completion",
			zap.String("reservation_id", r.ID.String()),
			zap.Error(err),
		)
	}

	logger.Info("Reservation completed",
		zap.String("reservation_id", r.ID.String()),
		zap.String("device_id", r.DeviceID.String()),
		zap.String("event", "reservation_completed"),
	)
}
