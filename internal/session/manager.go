package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domaindevice "lab-device-hub/internal/domain/device"
	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/logger"
	"lab-device-hub/internal/notify"
	apperrors "lab-device-hub/pkg/errors"
)

// Close reasons. A fault reason closes the session with status error.
const (
	ReasonUserRequest   = "user_request"
	ReasonWindowExpired = "reservation_window_expired"
	ReasonDeviceError   = "device_error"
	ReasonDeviceOffline = "device_offline"
)

func faultReason(reason string) bool {
	return reason == ReasonDeviceError || reason == ReasonDeviceOffline
}

// CloseListener observes session closes; the usage monitor subscribes.
type CloseListener func(s *domainsession.Session)

// Manager arbitrates exclusive device usage: at most one active session
// per device at any instant.
type Manager struct {
	sessions domainsession.Repository
	devices  domaindevice.Repository
	notifier notify.Notifier

	mu        sync.Mutex
	active    map[uuid.UUID]*domainsession.Session // keyed by device ID
	listeners []CloseListener
}

func NewManager(sessions domainsession.Repository, devices domaindevice.Repository, notifier notify.Notifier) *Manager {
	return &Manager{
		sessions: sessions,
		devices:  devices,
		notifier: notifier,
		active:   make(map[uuid.UUID]*domainsession.Session),
	}
}

// OnClose registers a close listener.
func (m *Manager) OnClose(fn CloseListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Open grants an exclusive session on the device, failing with
// ErrAlreadyInUse while another session is active.
func (m *Manager) Open(ctx context.Context, deviceID uuid.UUID, requesterID string) (*domainsession.Session, error) {
	return m.open(ctx, deviceID, requesterID, nil)
}

// OpenForReservation opens a session bound to its owning reservation.
func (m *Manager) OpenForReservation(ctx context.Context, deviceID uuid.UUID, requesterID string, reservationID uuid.UUID) (*domainsession.Session, error) {
	return m.open(ctx, deviceID, requesterID, &reservationID)
}

func (m *Manager) open(ctx context.Context, deviceID uuid.UUID, requesterID string, reservationID *uuid.UUID) (*domainsession.Session, error) {
	dev, err := m.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	if dev.Retired {
		return nil, apperrors.ErrDeviceRetired
	}

	m.mu.Lock()
	if existing, ok := m.active[deviceID]; ok && existing.Active() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: held by %s", apperrors.ErrAlreadyInUse, existing.RequesterID)
	}

	s := &domainsession.Session{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		RequesterID:   requesterID,
		ReservationID: reservationID,
		Status:        domainsession.StatusActive,
		StartedAt:     time.Now(),
	}
	m.active[deviceID] = s
	m.mu.Unlock()

	if err := m.sessions.Create(ctx, s); err != nil {
		m.mu.Lock()
		delete(m.active, deviceID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to record session: %w", err)
	}

	logger.Info("Session opened",
		zap.String("session_id", s.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("requester_id", requesterID),
		zap.String("event", "session_opened"),
	)
	m.notifier.SessionStarted(s)

	return s, nil
}

// Close ends the session. A fault reason produces status error, which
// the usage monitor counts against the device.
func (m *Manager) Close(ctx context.Context, sessionID uuid.UUID, reason string) (*domainsession.Session, error) {
	m.mu.Lock()
	var s *domainsession.Session
	for _, candidate := range m.active {
		if candidate.ID == sessionID {
			s = candidate
			break
		}
	}
	if s == nil {
		m.mu.Unlock()
		stored, err := m.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.ErrSessionNotFound
		}
		return stored, apperrors.ErrSessionClosed
	}

	now := time.Now()
	s.EndedAt = &now
	s.CloseReason = &reason
	if faultReason(reason) {
		s.Status = domainsession.StatusError
	} else {
		s.Status = domainsession.StatusEnded
	}
	delete(m.active, s.DeviceID)
	snapshot := *s
	m.mu.Unlock()

	if err := m.sessions.Update(ctx, &snapshot); err != nil {
		logger.Warn("Failed to persist session close",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}

	logger.Info("Session closed",
		zap.String("session_id", snapshot.ID.String()),
		zap.String("device_id", snapshot.DeviceID.String()),
		zap.String("reason", reason),
		zap.String("status", string(snapshot.Status)),
		zap.String("event", "session_closed"),
	)
	m.notifier.SessionEnded(&snapshot)
	m.notifyClose(&snapshot)

	return &snapshot, nil
}

// ActiveSessionID reports the active session for a device, if any.
// Satisfies the dispatcher's session resolver.
func (m *Manager) ActiveSessionID(deviceID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.active[deviceID]; ok && s.Active() {
		return s.ID, true
	}
	return uuid.Nil, false
}

// ActiveSession returns a snapshot of the device's active session.
func (m *Manager) ActiveSession(deviceID uuid.UUID) (*domainsession.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.active[deviceID]; ok && s.Active() {
		snapshot := *s
		return &snapshot, true
	}
	return nil, false
}

// AttachCommand binds a command to its session's ordered command list.
func (m *Manager) AttachCommand(sessionID, commandID uuid.UUID) {
	m.attach(sessionID, func(s *domainsession.Session) {
		s.CommandIDs = append(s.CommandIDs, commandID)
	})
}

// AttachDataPoints binds ingested points to the session.
func (m *Manager) AttachDataPoints(sessionID uuid.UUID, pointIDs []uuid.UUID) {
	m.attach(sessionID, func(s *domainsession.Session) {
		s.DataPointIDs = append(s.DataPointIDs, pointIDs...)
	})
}

func (m *Manager) attach(sessionID uuid.UUID, mutate func(*domainsession.Session)) {
	m.mu.Lock()
	var snapshot *domainsession.Session
	for _, s := range m.active {
		if s.ID == sessionID {
			mutate(s)
			copied := *s
			snapshot = &copied
			break
		}
	}
	m.mu.Unlock()

	if snapshot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.sessions.Update(ctx, snapshot); err != nil {
		logger.Warn("Failed to persist session binding",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}
}

// HandleConnectionChange auto-closes the active session when its device
// drops to error or offline mid-session. Wire this to the connection
// manager's state listener.
func (m *Manager) HandleConnectionChange(deviceID uuid.UUID, _, next domaindevice.ConnectionState) {
	if next != domaindevice.StateError && next != domaindevice.StateOffline {
		return
	}

	m.mu.Lock()
	s, ok := m.active[deviceID]
	m.mu.Unlock()
	if !ok || !s.Active() {
		return
	}

	reason := ReasonDeviceOffline
	if next == domaindevice.StateError {
		reason = ReasonDeviceError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.Close(ctx, s.ID, reason); err != nil {
		logger.Warn("Failed to auto-close session",
			zap.String("session_id", s.ID.String()),
			zap.Error(err),
		)
	}
}

func (m *Manager) notifyClose(s *domainsession.Session) {
	m.mu.Lock()
	listeners := make([]CloseListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}
