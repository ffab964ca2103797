// Package notify defines the fire-and-forget notification sink this
// core informs on session and reservation lifecycle events. Delivery
// mechanics live outside the core.
package notify

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainreservation "lab-device-hub/internal/domain/reservation"
	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/logger"
)

// Notifier receives lifecycle events. Implementations must not block;
// the core never waits on delivery.
type Notifier interface {
	SessionStarted(s *domainsession.Session)
	SessionEnded(s *domainsession.Session)
	ReservationApproved(r *domainreservation.Reservation)
	ReservationRejected(r *domainreservation.Reservation, reason string)
	DeviceErrored(deviceID uuid.UUID)
}

// LogNotifier is the default sink: structured log lines only.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SessionStarted(s *domainsession.Session) {
	logger.Info("Notify: session started",
		zap.String("session_id", s.ID.String()),
		zap.String("device_id", s.DeviceID.String()),
		zap.String("requester_id", s.RequesterID),
	)
}

func (n *LogNotifier) SessionEnded(s *domainsession.Session) {
	logger.Info("Notify: session ended",
		zap.String("session_id", s.ID.String()),
		zap.String("device_id", s.DeviceID.String()),
		zap.String("status", string(s.Status)),
	)
}

func (n *LogNotifier) ReservationApproved(r *domainreservation.Reservation) {
	logger.Info("Notify: reservation approved",
		zap.String("reservation_id", r.ID.String()),
		zap.String("device_id", r.DeviceID.String()),
		zap.Time("start_at", r.StartAt),
	)
}

func (n *LogNotifier) ReservationRejected(r *domainreservation.Reservation, reason string) {
	logger.Info("Notify: reservation rejected",
		zap.String("reservation_id", r.ID.String()),
		zap.String("device_id", r.DeviceID.String()),
		zap.String("reason", reason),
	)
}

func (n *LogNotifier) DeviceErrored(deviceID uuid.UUID) {
	logger.Warn("Notify: device errored",
		zap.String("device_id", deviceID.String()),
	)
}
