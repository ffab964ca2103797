package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/config"
	"lab-device-hub/internal/connection"
	domaindevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/domain/telemetry"
	"lab-device-hub/internal/logger"
	"lab-device-hub/internal/monitor"
	"lab-device-hub/internal/session"
)

// Buffer pulls buffered measurements off device links, tags them with
// device and session identity, and lands them in batches. One polling
// loop per online device; a single flusher owns the batch.
type Buffer struct {
	registry *adapter.Registry
	conns    *connection.Manager
	sessions *session.Manager
	devices  domaindevice.Repository
	points   telemetry.Repository
	usage    *monitor.UsageMonitor
	cfg      config.DeviceConfig

	mu    sync.Mutex
	polls map[uuid.UUID]chan struct{}

	batchCh chan *telemetry.DataPoint

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBuffer(
	registry *adapter.Registry,
	conns *connection.Manager,
	sessions *session.Manager,
	devices domaindevice.Repository,
	points telemetry.Repository,
	usage *monitor.UsageMonitor,
	cfg config.DeviceConfig,
) *Buffer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Buffer{
		registry: registry,
		conns:    conns,
		sessions: sessions,
		devices:  devices,
		points:   points,
		usage:    usage,
		cfg:      cfg,
		polls:    make(map[uuid.UUID]chan struct{}),
		batchCh:  make(chan *telemetry.DataPoint, 1024),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the batch flusher. Polling loops start and stop with
// device connectivity via HandleConnectionChange.
func (b *Buffer) Start() {
	b.wg.Add(1)
	go b.flusher()
}

// Stop halts polling and flushes the remaining batch.
func (b *Buffer) Stop() {
	b.mu.Lock()
	for deviceID, stop := range b.polls {
		close(stop)
		delete(b.polls, deviceID)
	}
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

// HandleConnectionChange starts polling when a device comes online and
// stops when it leaves. Wire to the connection manager's listener.
func (b *Buffer) HandleConnectionChange(deviceID uuid.UUID, _, next domaindevice.ConnectionState) {
	if next == domaindevice.StateOnline {
		b.startPolling(deviceID)
		return
	}
	b.stopPolling(deviceID)
}

func (b *Buffer) startPolling(deviceID uuid.UUID) {
	b.mu.Lock()
	if _, running := b.polls[deviceID]; running {
		b.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	b.polls[deviceID] = stop
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	dev, err := b.devices.GetByID(ctx, deviceID)
	cancel()
	if err != nil {
		logger.Warn("Cannot poll unknown device", zap.String("device_id", deviceID.String()))
		b.stopPolling(deviceID)
		return
	}

	ad, err := b.registry.Lookup(dev.Transport)
	if err != nil {
		logger.Error("Cannot poll device without adapter",
			zap.String("device_id", deviceID.String()),
			zap.Error(err),
		)
		b.stopPolling(deviceID)
		return
	}

	interval := b.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				b.poll(ad, deviceID)
			}
		}
	}()
}

func (b *Buffer) stopPolling(deviceID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if stop, ok := b.polls[deviceID]; ok {
		close(stop)
		delete(b.polls, deviceID)
	}
}

// poll drains one round of readings and tags them.
func (b *Buffer) poll(ad adapter.Adapter, deviceID uuid.UUID) {
	readings := ad.ReadData(deviceID)
	if len(readings) == 0 {
		return
	}

	var sessionID *uuid.UUID
	if id, ok := b.sessions.ActiveSessionID(deviceID); ok {
		sessionID = &id
	}

	pointIDs := make([]uuid.UUID, 0, len(readings))
	for _, r := range readings {
		point := &telemetry.DataPoint{
			ID:        uuid.New(),
			DeviceID:  deviceID,
			SessionID: sessionID,
			Timestamp: r.Timestamp,
			Kind:      r.Kind,
			Value:     r.Value,
			Quality:   r.Quality,
		}
		if r.Unit != "" {
			unit := r.Unit
			point.Unit = &unit
		}
		pointIDs = append(pointIDs, point.ID)

		select {
		case b.batchCh <- point:
		default:
			logger.Warn("Ingest buffer full, dropping data point",
				zap.String("device_id", deviceID.String()),
			)
		}
	}

	if sessionID != nil {
		b.sessions.AttachDataPoints(*sessionID, pointIDs)
	}
	if b.usage != nil {
		b.usage.RecordPoints(deviceID, len(readings))
	}
}

// flusher batches points and lands them on size or period, whichever
// comes first.
func (b *Buffer) flusher() {
	defer b.wg.Done()

	batchSize := b.cfg.IngestBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	period := b.cfg.IngestFlushPeriod
	if period <= 0 {
		period = 5 * time.Second
	}

	batch := make([]*telemetry.DataPoint, 0, batchSize)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := b.points.CreateBatch(ctx, batch); err != nil {
			logger.Error("Failed to flush data point batch",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		}
		cancel()
		batch = make([]*telemetry.DataPoint, 0, batchSize)
	}

	for {
		select {
		case <-b.ctx.Done():
			// Drain whatever is still queued before the final flush.
			for {
				select {
				case point := <-b.batchCh:
					batch = append(batch, point)
				default:
					flush()
					return
				}
			}
		case point := <-b.batchCh:
			batch = append(batch, point)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Feed returns data points for a device ordered by timestamp ascending,
// restartable from the given offset.
func (b *Buffer) Feed(ctx context.Context, deviceID uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return b.points.ListByDevice(ctx, deviceID, since, limit)
}

// SessionFeed is Feed scoped to one session.
func (b *Buffer) SessionFeed(ctx context.Context, sessionID uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return b.points.ListBySession(ctx, sessionID, since, limit)
}
