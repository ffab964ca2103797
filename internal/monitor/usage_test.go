package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaincommand "lab-device-hub/internal/domain/command"
	domaindevice "lab-device-hub/internal/domain/device"
	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/infrastructure/memory"
	"lab-device-hub/internal/monitor"
)

func newMonitor(t *testing.T, repo *memory.UsageRepository) *monitor.UsageMonitor {
	t.Helper()

	m := monitor.NewUsageMonitor(repo, time.Hour)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func closedSession(deviceID uuid.UUID, length time.Duration, status domainsession.Status) *domainsession.Session {
	started := time.Now().Add(-length)
	ended := time.Now()
	return &domainsession.Session{
		ID:        uuid.New(),
		DeviceID:  deviceID,
		Status:    status,
		StartedAt: started,
		EndedAt:   &ended,
	}
}

func TestSessionCloseCountedOnce(t *testing.T) {
	repo := memory.NewUsageRepository()
	m := newMonitor(t, repo)
	deviceID := uuid.New()

	m.HandleSessionClose(closedSession(deviceID, 10*time.Minute, domainsession.StatusEnded))

	require.Eventually(t, func() bool {
		return m.Snapshot(deviceID).SessionCount == 1
	}, time.Second, 5*time.Millisecond)

	snap := m.Snapshot(deviceID)
	assert.InDelta(t, 600, snap.UsageSeconds, 1)
	assert.Equal(t, int64(0), snap.ErrorCount)
	assert.NotNil(t, snap.LastUsedAt)

	// Session closes are the persistence trigger.
	stored, err := repo.GetByDevice(context.Background(), deviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.SessionCount)
}

func TestErrorSessionIncrementsErrorCount(t *testing.T) {
	m := newMonitor(t, memory.NewUsageRepository())
	deviceID := uuid.New()

	m.HandleSessionClose(closedSession(deviceID, time.Minute, domainsession.StatusError))

	require.Eventually(t, func() bool {
		snap := m.Snapshot(deviceID)
		return snap.SessionCount == 1 && snap.ErrorCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFailedCommandIncrementsErrorCount(t *testing.T) {
	m := newMonitor(t, memory.NewUsageRepository())
	deviceID := uuid.New()

	m.HandleCommandCompletion(&domaincommand.Command{
		ID:       uuid.New(),
		DeviceID: deviceID,
		Status:   domaincommand.StatusFailed,
	})
	m.HandleCommandCompletion(&domaincommand.Command{
		ID:       uuid.New(),
		DeviceID: deviceID,
		Status:   domaincommand.StatusExecuted,
	})

	require.Eventually(t, func() bool {
		snap := m.Snapshot(deviceID)
		return snap.ErrorCount == 1 && snap.LastUsedAt != nil
	}, time.Second, 5*time.Millisecond)

	// Successful commands touch last-used but not the error count.
	assert.Equal(t, int64(1), m.Snapshot(deviceID).ErrorCount)
}

func TestRecordPointsAccumulates(t *testing.T) {
	m := newMonitor(t, memory.NewUsageRepository())
	deviceID := uuid.New()

	m.RecordPoints(deviceID, 10)
	m.RecordPoints(deviceID, 5)

	require.Eventually(t, func() bool {
		return m.Snapshot(deviceID).DataPointCount == 15
	}, time.Second, 5*time.Millisecond)
}

func TestAvailabilityTracksOnlineShare(t *testing.T) {
	m := newMonitor(t, memory.NewUsageRepository())
	deviceID := uuid.New()

	// Untracked devices report full availability.
	assert.Equal(t, 1.0, m.Snapshot(deviceID).Availability)

	m.HandleConnectionChange(deviceID, domaindevice.StateOffline, domaindevice.StateOnline)
	time.Sleep(50 * time.Millisecond)
	m.HandleConnectionChange(deviceID, domaindevice.StateOnline, domaindevice.StateError)
	time.Sleep(50 * time.Millisecond)
	m.HandleConnectionChange(deviceID, domaindevice.StateError, domaindevice.StateOffline)

	require.Eventually(t, func() bool {
		avail := m.Snapshot(deviceID).Availability
		return avail > 0 && avail < 1
	}, time.Second, 5*time.Millisecond)

	// Roughly half the accounted time was online. Offline spans do not
	// count against availability.
	avail := m.Snapshot(deviceID).Availability
	assert.InDelta(t, 0.5, avail, 0.2)
}

func TestOfflineOnlyDeviceKeepsFullAvailability(t *testing.T) {
	m := newMonitor(t, memory.NewUsageRepository())
	deviceID := uuid.New()

	m.HandleConnectionChange(deviceID, domaindevice.StateOnline, domaindevice.StateOffline)

	require.Eventually(t, func() bool {
		return m.Snapshot(deviceID).SessionCount == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, m.Snapshot(deviceID).Availability)
}

func TestStatsAreIndependentPerDevice(t *testing.T) {
	m := newMonitor(t, memory.NewUsageRepository())
	first := uuid.New()
	second := uuid.New()

	m.RecordPoints(first, 3)
	m.HandleSessionClose(closedSession(second, time.Minute, domainsession.StatusEnded))

	require.Eventually(t, func() bool {
		return m.Snapshot(first).DataPointCount == 3 && m.Snapshot(second).SessionCount == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(0), m.Snapshot(first).SessionCount)
	assert.Equal(t, int64(0), m.Snapshot(second).DataPointCount)
}
