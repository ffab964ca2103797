package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaindevice "lab-device-hub/internal/domain/device"
	domainreservation "lab-device-hub/internal/domain/reservation"
	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/infrastructure/memory"
	"lab-device-hub/internal/session"
	apperrors "lab-device-hub/pkg/errors"
)

// recordingNotifier counts lifecycle notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	started []uuid.UUID
	ended   []uuid.UUID
}

func (n *recordingNotifier) SessionStarted(s *domainsession.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, s.ID)
}

func (n *recordingNotifier) SessionEnded(s *domainsession.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, s.ID)
}

func (n *recordingNotifier) ReservationApproved(*domainreservation.Reservation)         {}
func (n *recordingNotifier) ReservationRejected(*domainreservation.Reservation, string) {}
func (n *recordingNotifier) DeviceErrored(uuid.UUID)                                    {}

func (n *recordingNotifier) endedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ended)
}

type sessionRig struct {
	manager  *session.Manager
	sessions *memory.SessionRepository
	devices  *memory.DeviceRepository
	notifier *recordingNotifier
	deviceID uuid.UUID
}

func newSessionRig(t *testing.T) *sessionRig {
	t.Helper()

	devices := memory.NewDeviceRepository()
	dev := &domaindevice.Device{
		HardwareUID: "SIM-" + uuid.NewString(),
		Transport:   domaindevice.TransportSim,
	}
	require.NoError(t, devices.Create(context.Background(), dev))

	sessions := memory.NewSessionRepository()
	notifier := &recordingNotifier{}

	return &sessionRig{
		manager:  session.NewManager(sessions, devices, notifier),
		sessions: sessions,
		devices:  devices,
		notifier: notifier,
		deviceID: dev.ID,
	}
}

func TestOpenGrantsExclusiveSession(t *testing.T) {
	rig := newSessionRig(t)

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, domainsession.StatusActive, s.Status)
	assert.Equal(t, "student-1", s.RequesterID)

	_, err = rig.manager.Open(context.Background(), rig.deviceID, "student-2")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInUse)

	// The stored record matches the grant.
	stored, err := rig.sessions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domainsession.StatusActive, stored.Status)
}

func TestOpenUnknownDevice(t *testing.T) {
	rig := newSessionRig(t)

	_, err := rig.manager.Open(context.Background(), uuid.New(), "student-1")
	assert.ErrorIs(t, err, apperrors.ErrUnknownDevice)
}

func TestOpenRetiredDevice(t *testing.T) {
	rig := newSessionRig(t)
	require.NoError(t, rig.devices.Retire(context.Background(), rig.deviceID))

	_, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	assert.ErrorIs(t, err, apperrors.ErrDeviceRetired)
}

func TestConcurrentOpensHaveOneWinner(t *testing.T) {
	rig := newSessionRig(t)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rig.manager.Open(context.Background(), rig.deviceID, "racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	won, lost := 0, 0
	for err := range results {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, apperrors.ErrAlreadyInUse)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, racers-1, lost)
}

func TestCloseEndsSessionAndFreesDevice(t *testing.T) {
	rig := newSessionRig(t)

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)

	closed, err := rig.manager.Close(context.Background(), s.ID, session.ReasonUserRequest)
	require.NoError(t, err)
	assert.Equal(t, domainsession.StatusEnded, closed.Status)
	require.NotNil(t, closed.EndedAt)
	require.NotNil(t, closed.CloseReason)
	assert.Equal(t, session.ReasonUserRequest, *closed.CloseReason)
	assert.Equal(t, 1, rig.notifier.endedCount())

	// The device accepts a fresh session afterwards.
	_, err = rig.manager.Open(context.Background(), rig.deviceID, "student-2")
	assert.NoError(t, err)
}

func TestCloseAlreadyClosedSession(t *testing.T) {
	rig := newSessionRig(t)

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)
	_, err = rig.manager.Close(context.Background(), s.ID, session.ReasonUserRequest)
	require.NoError(t, err)

	stored, err := rig.manager.Close(context.Background(), s.ID, session.ReasonUserRequest)
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
	require.NotNil(t, stored)
	assert.Equal(t, domainsession.StatusEnded, stored.Status)
}

func TestCloseUnknownSession(t *testing.T) {
	rig := newSessionRig(t)

	_, err := rig.manager.Close(context.Background(), uuid.New(), session.ReasonUserRequest)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestFaultReasonClosesWithErrorStatus(t *testing.T) {
	rig := newSessionRig(t)

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)

	closed, err := rig.manager.Close(context.Background(), s.ID, session.ReasonDeviceError)
	require.NoError(t, err)
	assert.Equal(t, domainsession.StatusError, closed.Status)
}

func TestConnectionDropAutoClosesSession(t *testing.T) {
	rig := newSessionRig(t)

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)

	rig.manager.HandleConnectionChange(rig.deviceID, domaindevice.StateOnline, domaindevice.StateError)

	stored, err := rig.sessions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domainsession.StatusError, stored.Status)
	require.NotNil(t, stored.CloseReason)
	assert.Equal(t, session.ReasonDeviceError, *stored.CloseReason)

	_, active := rig.manager.ActiveSession(rig.deviceID)
	assert.False(t, active)
}

func TestConnectionChangeToOnlineKeepsSession(t *testing.T) {
	rig := newSessionRig(t)

	_, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)

	rig.manager.HandleConnectionChange(rig.deviceID, domaindevice.StateConnecting, domaindevice.StateOnline)

	_, active := rig.manager.ActiveSession(rig.deviceID)
	assert.True(t, active)
}

func TestAttachCommandAndDataPoints(t *testing.T) {
	rig := newSessionRig(t)

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)

	cmdID := uuid.New()
	rig.manager.AttachCommand(s.ID, cmdID)

	points := []uuid.UUID{uuid.New(), uuid.New()}
	rig.manager.AttachDataPoints(s.ID, points)

	stored, err := rig.sessions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cmdID}, stored.CommandIDs)
	assert.Equal(t, points, stored.DataPointIDs)
}

func TestOpenForReservationBindsReservation(t *testing.T) {
	rig := newSessionRig(t)

	reservationID := uuid.New()
	s, err := rig.manager.OpenForReservation(context.Background(), rig.deviceID, "student-1", reservationID)
	require.NoError(t, err)
	require.NotNil(t, s.ReservationID)
	assert.Equal(t, reservationID, *s.ReservationID)
}

func TestCloseListenerObservesClose(t *testing.T) {
	rig := newSessionRig(t)

	var mu sync.Mutex
	var observed []domainsession.Status
	rig.manager.OnClose(func(s *domainsession.Session) {
		mu.Lock()
		observed = append(observed, s.Status)
		mu.Unlock()
	})

	s, err := rig.manager.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)
	_, err = rig.manager.Close(context.Background(), s.ID, session.ReasonUserRequest)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.Equal(t, domainsession.StatusEnded, observed[0])
}
