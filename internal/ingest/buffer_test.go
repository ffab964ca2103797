package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/adapter/simadapter"
	"lab-device-hub/internal/config"
	"lab-device-hub/internal/connection"
	domaindevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/infrastructure/memory"
	"lab-device-hub/internal/ingest"
	"lab-device-hub/internal/monitor"
	"lab-device-hub/internal/notify"
	"lab-device-hub/internal/session"
)

type bufferRig struct {
	buffer   *ingest.Buffer
	conns    *connection.Manager
	sessions *session.Manager
	sim      *simadapter.Adapter
	points   *memory.TelemetryRepository
	usage    *monitor.UsageMonitor
	deviceID uuid.UUID
}

func newBufferRig(t *testing.T) *bufferRig {
	t.Helper()

	sim := simadapter.New()
	registry := adapter.NewRegistry()
	registry.Register(sim)

	devices := memory.NewDeviceRepository()
	dev := &domaindevice.Device{
		HardwareUID: "SIM-" + uuid.NewString(),
		Transport:   domaindevice.TransportSim,
	}
	require.NoError(t, devices.Create(context.Background(), dev))

	points := memory.NewTelemetryRepository()
	sessions := session.NewManager(memory.NewSessionRepository(), devices, notify.NewLogNotifier())
	usage := monitor.NewUsageMonitor(memory.NewUsageRepository(), time.Hour)
	usage.Start()
	t.Cleanup(usage.Stop)

	cfg := config.DeviceConfig{
		HeartbeatInterval: time.Minute,
		ConnectTimeout:    time.Second,
		PollInterval:      10 * time.Millisecond,
		IngestBatchSize:   4,
		IngestFlushPeriod: 20 * time.Millisecond,
	}

	conns := connection.NewManager(registry, devices, cfg)
	t.Cleanup(conns.Close)

	buffer := ingest.NewBuffer(registry, conns, sessions, devices, points, usage, cfg)
	buffer.Start()
	t.Cleanup(buffer.Stop)

	conns.OnStateChange(buffer.HandleConnectionChange)

	return &bufferRig{
		buffer:   buffer,
		conns:    conns,
		sessions: sessions,
		sim:      sim,
		points:   points,
		usage:    usage,
		deviceID: dev.ID,
	}
}

func (r *bufferRig) feed(n int) {
	base := time.Now()
	for i := 0; i < n; i++ {
		r.sim.FeedReading(r.deviceID, adapter.Reading{
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Kind:      "temperature",
			Value:     20 + float64(i),
			Unit:      "C",
		})
	}
}

func TestReadingsLandAsDataPoints(t *testing.T) {
	rig := newBufferRig(t)
	require.NoError(t, rig.conns.Connect(context.Background(), rig.deviceID, adapter.ConnConfig{}))

	rig.feed(3)

	require.Eventually(t, func() bool {
		pts, err := rig.points.ListByDevice(context.Background(), rig.deviceID, time.Time{}, 100)
		return err == nil && len(pts) == 3
	}, 2*time.Second, 10*time.Millisecond)

	pts, err := rig.points.ListByDevice(context.Background(), rig.deviceID, time.Time{}, 100)
	require.NoError(t, err)
	first := pts[0]
	assert.Equal(t, "temperature", first.Kind)
	assert.Equal(t, 20.0, first.Value)
	require.NotNil(t, first.Unit)
	assert.Equal(t, "C", *first.Unit)
	assert.Nil(t, first.SessionID)
}

func TestPointsAreTaggedWithActiveSession(t *testing.T) {
	rig := newBufferRig(t)
	require.NoError(t, rig.conns.Connect(context.Background(), rig.deviceID, adapter.ConnConfig{}))

	s, err := rig.sessions.Open(context.Background(), rig.deviceID, "student-1")
	require.NoError(t, err)

	rig.feed(2)

	require.Eventually(t, func() bool {
		pts, err := rig.points.ListBySession(context.Background(), s.ID, time.Time{}, 100)
		return err == nil && len(pts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	active, ok := rig.sessions.ActiveSession(rig.deviceID)
	require.True(t, ok)
	assert.Len(t, active.DataPointIDs, 2)
}

func TestPollingStopsWhenDeviceGoesOffline(t *testing.T) {
	rig := newBufferRig(t)
	require.NoError(t, rig.conns.Connect(context.Background(), rig.deviceID, adapter.ConnConfig{}))
	require.NoError(t, rig.conns.Disconnect(context.Background(), rig.deviceID))

	// Readings buffered after disconnect are never polled. The link
	// table discards them on close as well, so nothing can land.
	rig.feed(5)
	time.Sleep(100 * time.Millisecond)

	pts, err := rig.points.ListByDevice(context.Background(), rig.deviceID, time.Time{}, 100)
	require.NoError(t, err)
	assert.Empty(t, pts)
}

func TestFeedPagination(t *testing.T) {
	rig := newBufferRig(t)
	require.NoError(t, rig.conns.Connect(context.Background(), rig.deviceID, adapter.ConnConfig{}))

	rig.feed(6)

	require.Eventually(t, func() bool {
		pts, err := rig.points.ListByDevice(context.Background(), rig.deviceID, time.Time{}, 100)
		return err == nil && len(pts) == 6
	}, 2*time.Second, 10*time.Millisecond)

	page, err := rig.buffer.Feed(context.Background(), rig.deviceID, time.Time{}, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)

	// Restart from the last timestamp of the first page.
	rest, err := rig.buffer.Feed(context.Background(), rig.deviceID, page[3].Timestamp, 4)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.True(t, rest[0].Timestamp.After(page[3].Timestamp))
}

func TestUsageMonitorSeesIngestCounts(t *testing.T) {
	rig := newBufferRig(t)
	require.NoError(t, rig.conns.Connect(context.Background(), rig.deviceID, adapter.ConnConfig{}))

	rig.feed(4)

	require.Eventually(t, func() bool {
		return rig.usage.Snapshot(rig.deviceID).DataPointCount == 4
	}, 2*time.Second, 10*time.Millisecond)
}
