package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domaincommand "lab-device-hub/internal/domain/command"
	domaindevice "lab-device-hub/internal/domain/device"
	domainsession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/domain/usage"
	"lab-device-hub/internal/logger"
)

type eventKind int

const (
	eventSessionClosed eventKind = iota
	eventCommandDone
	eventPointsIngested
	eventStateChanged
)

type event struct {
	kind     eventKind
	deviceID uuid.UUID
	session  *domainsession.Session
	failed   bool
	points   int64
	newState domaindevice.ConnectionState
	at       time.Time
}

// stateInterval is one completed span in a connection state, kept for
// the availability window.
type stateInterval struct {
	state domaindevice.ConnectionState
	from  time.Time
	to    time.Time
}

type deviceStats struct {
	sessionCount   int64
	usageSeconds   float64
	dataPointCount int64
	errorCount     int64
	lastUsedAt     *time.Time

	intervals []stateInterval
	curState  domaindevice.ConnectionState
	curSince  time.Time
}

// UsageMonitor aggregates session, command and connectivity history
// into per-device statistics. All writes flow through one consumer
// goroutine; every other component only reads snapshots.
type UsageMonitor struct {
	repo   usage.Repository
	window time.Duration

	events chan event

	mu    sync.RWMutex
	stats map[uuid.UUID]*deviceStats

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewUsageMonitor(repo usage.Repository, window time.Duration) *UsageMonitor {
	if window <= 0 {
		window = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UsageMonitor{
		repo:   repo,
		window: window,
		events: make(chan event, 256),
		stats:  make(map[uuid.UUID]*deviceStats),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the single consumer goroutine.
func (m *UsageMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			case ev := <-m.events:
				m.apply(ev)
			}
		}
	}()
}

// Stop drains and halts the consumer.
func (m *UsageMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// HandleSessionClose is the session manager's close listener.
func (m *UsageMonitor) HandleSessionClose(s *domainsession.Session) {
	m.enqueue(event{kind: eventSessionClosed, deviceID: s.DeviceID, session: s, at: time.Now()})
}

// HandleCommandCompletion is the dispatcher's completion listener.
func (m *UsageMonitor) HandleCommandCompletion(cmd *domaincommand.Command) {
	m.enqueue(event{
		kind:     eventCommandDone,
		deviceID: cmd.DeviceID,
		failed:   cmd.Status == domaincommand.StatusFailed,
		at:       time.Now(),
	})
}

// RecordPoints is called by the ingestion buffer after a batch lands.
func (m *UsageMonitor) RecordPoints(deviceID uuid.UUID, count int) {
	m.enqueue(event{kind: eventPointsIngested, deviceID: deviceID, points: int64(count), at: time.Now()})
}

// HandleConnectionChange is the connection manager's state listener; it
// feeds the availability window.
func (m *UsageMonitor) HandleConnectionChange(deviceID uuid.UUID, _, next domaindevice.ConnectionState) {
	m.enqueue(event{kind: eventStateChanged, deviceID: deviceID, newState: next, at: time.Now()})
}

func (m *UsageMonitor) enqueue(ev event) {
	select {
	case m.events <- ev:
	default:
		logger.Warn("Usage monitor event buffer full, dropping event",
			zap.String("device_id", ev.deviceID.String()),
		)
	}
}

func (m *UsageMonitor) apply(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.stats[ev.deviceID]
	if !ok {
		ds = &deviceStats{curState: domaindevice.StateOffline, curSince: ev.at}
		m.stats[ev.deviceID] = ds
	}

	switch ev.kind {
	case eventSessionClosed:
		ds.sessionCount++
		ds.usageSeconds += ev.session.Duration().Seconds()
		ds.lastUsedAt = &ev.at
		if ev.session.Status == domainsession.StatusError {
			ds.errorCount++
		}
		m.persist(ev.deviceID, ds)
	case eventCommandDone:
		ds.lastUsedAt = &ev.at
		if ev.failed {
			ds.errorCount++
		}
	case eventPointsIngested:
		ds.dataPointCount += ev.points
	case eventStateChanged:
		ds.intervals = append(ds.intervals, stateInterval{
			state: ds.curState,
			from:  ds.curSince,
			to:    ev.at,
		})
		ds.curState = ev.newState
		ds.curSince = ev.at
		ds.trim(ev.at.Add(-m.window))
	}
}

// trim discards intervals that fell out of the rolling window.
func (ds *deviceStats) trim(cutoff time.Time) {
	kept := ds.intervals[:0]
	for _, iv := range ds.intervals {
		if iv.to.After(cutoff) {
			if iv.from.Before(cutoff) {
				iv.from = cutoff
			}
			kept = append(kept, iv)
		}
	}
	ds.intervals = kept
}

// Snapshot returns the current statistics for a device.
func (m *UsageMonitor) Snapshot(deviceID uuid.UUID) usage.Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := usage.Statistics{DeviceID: deviceID, UpdatedAt: time.Now()}
	ds, ok := m.stats[deviceID]
	if !ok {
		return stats
	}

	stats.SessionCount = ds.sessionCount
	stats.UsageSeconds = ds.usageSeconds
	stats.DataPointCount = ds.dataPointCount
	stats.ErrorCount = ds.errorCount
	stats.LastUsedAt = ds.lastUsedAt
	stats.Availability = ds.availability(time.Now())
	return stats
}

// availability is online-time over online+error+maintenance time within
// the window. A device with no accounted time reports 1.0.
func (ds *deviceStats) availability(now time.Time) float64 {
	var online, errored, maintenance float64

	account := func(state domaindevice.ConnectionState, seconds float64) {
		switch state {
		case domaindevice.StateOnline:
			online += seconds
		case domaindevice.StateError:
			errored += seconds
		case domaindevice.StateMaintenance:
			maintenance += seconds
		}
	}

	for _, iv := range ds.intervals {
		account(iv.state, iv.to.Sub(iv.from).Seconds())
	}
	account(ds.curState, now.Sub(ds.curSince).Seconds())

	total := online + errored + maintenance
	if total == 0 {
		return 1.0
	}
	return online / total
}

func (m *UsageMonitor) persist(deviceID uuid.UUID, ds *deviceStats) {
	if m.repo == nil {
		return
	}

	snapshot := &usage.Statistics{
		DeviceID:       deviceID,
		SessionCount:   ds.sessionCount,
		UsageSeconds:   ds.usageSeconds,
		DataPointCount: ds.dataPointCount,
		ErrorCount:     ds.errorCount,
		LastUsedAt:     ds.lastUsedAt,
		Availability:   ds.availability(time.Now()),
		UpdatedAt:      time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.Upsert(ctx, snapshot); err != nil {
		logger.Warn("Failed to persist usage statistics",
			zap.String("device_id", deviceID.String()),
			zap.Error(err),
		)
	}
}
