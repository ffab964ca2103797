package reservation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-device-hub/internal/config"
	domaindevice "lab-device-hub/internal/domain/device"
	domainreservation "lab-device-hub/internal/domain/reservation"
	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/infrastructure/memory"
	"lab-device-hub/internal/notify"
	"lab-device-hub/internal/reservation"
	"lab-device-hub/internal/session"
	apperrors "lab-device-hub/pkg/errors"
)

type schedulerRig struct {
	scheduler    *reservation.Scheduler
	sessions     *session.Manager
	reservations *memory.ReservationRepository
	sessionRepo  *memory.SessionRepository
	devices      *memory.DeviceRepository
	deviceID     uuid.UUID
}

func newSchedulerRig(t *testing.T, cfg config.ReservationConfig) *schedulerRig {
	t.Helper()

	devices := memory.NewDeviceRepository()
	dev := &domaindevice.Device{
		HardwareUID: "SIM-" + uuid.NewString(),
		Transport:   domaindevice.TransportSim,
	}
	require.NoError(t, devices.Create(context.Background(), dev))

	reservations := memory.NewReservationRepository()
	sessionRepo := memory.NewSessionRepository()
	notifier := notify.NewLogNotifier()
	sessions := session.NewManager(sessionRepo, devices, notifier)

	return &schedulerRig{
		scheduler:    reservation.NewScheduler(reservations, devices, sessions, notifier, cfg),
		sessions:     sessions,
		reservations: reservations,
		sessionRepo:  sessionRepo,
		devices:      devices,
		deviceID:     dev.ID,
	}
}

func window(fromNow, length time.Duration) (time.Time, time.Time) {
	start := time.Now().Add(fromNow)
	return start, start.Add(length)
}

func TestRequestCreatesPendingReservation(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(time.Hour, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusPending, r.Status)
	assert.Equal(t, "student-1", r.RequesterID)
}

func TestRequestRejectsInvertedWindow(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(time.Hour, time.Hour)

	_, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", end, start)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWindow)

	// Zero-length windows are invalid too.
	_, err = rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, start)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWindow)
}

func TestRequestRejectsElapsedWindow(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(-2*time.Hour, time.Hour)

	_, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWindow)
}

func TestRequestUnknownDevice(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(time.Hour, time.Hour)

	_, err := rig.scheduler.Request(context.Background(), uuid.New(), "student-1", start, end)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDevice)
}

func TestApproveRejectsOverlappingWindow(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	base := time.Now().Add(time.Hour)

	first, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1",
		base, base.Add(30*time.Minute))
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), first.ID)
	require.NoError(t, err)

	// [base+15m, base+45m) intersects the approved [base, base+30m).
	second, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-2",
		base.Add(15*time.Minute), base.Add(45*time.Minute))
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), second.ID)
	assert.ErrorIs(t, err, apperrors.ErrOverlap)
}

func TestApproveAllowsAdjacentWindows(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	base := time.Now().Add(time.Hour)

	first, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1",
		base, base.Add(30*time.Minute))
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), first.ID)
	require.NoError(t, err)

	// Half-open windows: a slot starting exactly at the other's end fits.
	second, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-2",
		base.Add(30*time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	approved, err := rig.scheduler.Approve(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusApproved, approved.Status)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	base := time.Now().Add(time.Hour)

	// Eight pending reservations over the same window race for approval.
	const racers = 8
	ids := make([]uuid.UUID, racers)
	for i := range ids {
		r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1",
			base, base.Add(30*time.Minute))
		require.NoError(t, err)
		ids[i] = r.ID
	}

	var wg sync.WaitGroup
	results := make(chan error, racers)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := rig.scheduler.Approve(context.Background(), id)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	won, lost := 0, 0
	for err := range results {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, apperrors.ErrOverlap)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, racers-1, lost)
}

func TestApproveIsNotRepeatable(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(time.Hour, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), r.ID)
	require.NoError(t, err)

	_, err = rig.scheduler.Approve(context.Background(), r.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestAutoApproveRunsInline(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{AutoApprove: true})
	start, end := window(time.Hour, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusApproved, r.Status)

	// A conflicting request fails at request time.
	_, err = rig.scheduler.Request(context.Background(), rig.deviceID, "student-2", start, end)
	assert.ErrorIs(t, err, apperrors.ErrOverlap)
}

func TestCancelPendingAndApproved(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(time.Hour, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)

	cancelled, err := rig.scheduler.Cancel(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusCancelled, cancelled.Status)

	// Cancelling again is an invalid transition.
	_, err = rig.scheduler.Cancel(context.Background(), r.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	// A cancelled window no longer blocks approval of a competitor.
	other, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-2", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), other.ID)
	assert.NoError(t, err)
}

func TestCancelUnknownReservation(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})

	_, err := rig.scheduler.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)
}

func TestSweepPromotesDueReservation(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(-time.Minute, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), r.ID)
	require.NoError(t, err)

	rig.scheduler.Sweep(context.Background())

	stored, err := rig.reservations.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SessionID)

	active, ok := rig.sessions.ActiveSession(rig.deviceID)
	require.True(t, ok)
	assert.Equal(t, *stored.SessionID, active.ID)
	require.NotNil(t, active.ReservationID)
	assert.Equal(t, r.ID, *active.ReservationID)

	// A second sweep does not disturb the promoted reservation.
	rig.scheduler.Sweep(context.Background())
	again, err := rig.reservations.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusApproved, again.Status)
	assert.Equal(t, *stored.SessionID, *again.SessionID)
}

func TestSweepRejectsPromotionWhenDeviceBusy(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(-time.Minute, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), r.ID)
	require.NoError(t, err)

	// Walk-up use occupies the device before the window opens.
	_, err = rig.sessions.Open(context.Background(), rig.deviceID, "walk-up")
	require.NoError(t, err)

	rig.scheduler.Sweep(context.Background())

	stored, err := rig.reservations.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusRejected, stored.Status)
	require.NotNil(t, stored.Note)
	assert.Contains(t, *stored.Note, "promotion failed")
}

func TestSweepCompletesExpiredReservation(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	start, end := window(-time.Minute, time.Hour)

	r, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), r.ID)
	require.NoError(t, err)

	rig.scheduler.Sweep(context.Background())
	promoted, err := rig.reservations.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, promoted.SessionID)

	// Force the window shut and sweep again.
	promoted.EndAt = time.Now().Add(-time.Second)
	require.NoError(t, rig.reservations.Update(context.Background(), promoted))
	rig.scheduler.Sweep(context.Background())

	completed, err := rig.reservations.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domainreservation.StatusCompleted, completed.Status)

	closedSession, err := rig.sessionRepo.GetByID(context.Background(), *promoted.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domainsession.StatusEnded, closedSession.Status)
	require.NotNil(t, closedSession.CloseReason)
	assert.Equal(t, session.ReasonWindowExpired, *closedSession.CloseReason)

	_, active := rig.sessions.ActiveSession(rig.deviceID)
	assert.False(t, active)
}

func TestOverlapOnOtherDeviceAllowed(t *testing.T) {
	rig := newSchedulerRig(t, config.ReservationConfig{})
	other := &domaindevice.Device{
		HardwareUID: "SIM-" + uuid.NewString(),
		Transport:   domaindevice.TransportSim,
	}
	require.NoError(t, rig.devices.Create(context.Background(), other))

	start, end := window(time.Hour, time.Hour)

	first, err := rig.scheduler.Request(context.Background(), rig.deviceID, "student-1", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), first.ID)
	require.NoError(t, err)

	second, err := rig.scheduler.Request(context.Background(), other.ID, "student-2", start, end)
	require.NoError(t, err)
	_, err = rig.scheduler.Approve(context.Background(), second.ID)
	assert.NoError(t, err)
}
