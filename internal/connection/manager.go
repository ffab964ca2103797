package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/config"
	domaindevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/logger"
	apperrors "lab-device-hub/pkg/errors"
)

// StateListener is notified after a device changes connection state.
type StateListener func(deviceID uuid.UUID, old, new domaindevice.ConnectionState)

// Manager owns per-device connection state. It is the only component
// that mutates ConnectionState; everyone else observes through State
// or a registered listener.
type Manager struct {
	registry *adapter.Registry
	devices  domaindevice.Repository
	cfg      config.DeviceConfig

	mu        sync.RWMutex
	links     map[uuid.UUID]*link
	listeners []StateListener

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// link is the owned state record for one device. Its mutex serializes
// every transition for that device.
type link struct {
	mu       sync.Mutex
	deviceID uuid.UUID
	kind     domaindevice.TransportKind
	connCfg  adapter.ConnConfig
	state    domaindevice.ConnectionState
	misses   int
	stopHB   chan struct{}
}

func NewManager(registry *adapter.Registry, devices domaindevice.Repository, cfg config.DeviceConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: registry,
		devices:  devices,
		cfg:      cfg,
		links:    make(map[uuid.UUID]*link),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnStateChange registers a listener. Listeners run synchronously on
// the transitioning device's goroutine and must not block.
func (m *Manager) OnStateChange(fn StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current connection state; untracked devices are
// offline.
func (m *Manager) State(deviceID uuid.UUID) domaindevice.ConnectionState {
	m.mu.RLock()
	l, ok := m.links[deviceID]
	m.mu.RUnlock()
	if !ok {
		return domaindevice.StateOffline
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect drives offline→connecting→online for the device, retrying
// with bounded exponential backoff. After the retry budget is spent the
// device is left offline and ErrConnectionFailed is surfaced.
func (m *Manager) Connect(ctx context.Context, deviceID uuid.UUID, connCfg adapter.ConnConfig) error {
	dev, err := m.devices.GetByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	if dev.Retired {
		return apperrors.ErrDeviceRetired
	}

	ad, err := m.registry.Lookup(dev.Transport)
	if err != nil {
		return err
	}

	l := m.track(deviceID, dev.Transport, connCfg)

	l.mu.Lock()
	if l.state == domaindevice.StateOnline {
		l.mu.Unlock()
		return nil
	}
	if l.state == domaindevice.StateMaintenance {
		l.mu.Unlock()
		return fmt.Errorf("%w: device is under maintenance hold", apperrors.ErrDeviceNotOnline)
	}
	l.mu.Unlock()

	attempts := m.cfg.MaxConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := NewBackoff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		m.transition(l, domaindevice.StateConnecting)

		attemptCtx, cancel := context.WithTimeout(ctx, m.connectTimeout())
		lastErr = ad.Connect(attemptCtx, deviceID, connCfg)
		cancel()

		if lastErr == nil {
			m.transition(l, domaindevice.StateOnline)
			_ = m.devices.UpdateLastSeen(ctx, deviceID)
			m.startHeartbeat(l, ad)
			logger.Info("Device connected",
				zap.String("device_id", deviceID.String()),
				zap.Int("attempt", attempt),
				zap.String("event", "device_connected"),
			)
			return nil
		}

		m.transition(l, domaindevice.StateOffline)
		logger.Warn("Connect attempt failed",
			zap.String("device_id", deviceID.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: connect cancelled", apperrors.ErrTimeout)
			case <-time.After(backoff.Next()):
			}
		}
	}

	return fmt.Errorf("%w: %d attempts: %v", apperrors.ErrConnectionFailed, attempts, lastErr)
}

// Disconnect releases the link. Idempotent: disconnecting an
// already-offline device succeeds and leaves it offline.
func (m *Manager) Disconnect(ctx context.Context, deviceID uuid.UUID) error {
	m.mu.RLock()
	l, ok := m.links[deviceID]
	m.mu.RUnlock()
	if !ok {
		if _, err := m.devices.GetByID(ctx, deviceID); err != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
		}
		return nil
	}

	m.stopHeartbeat(l)

	ad, err := m.registry.Lookup(l.kind)
	if err != nil {
		return err
	}

	dcCtx, cancel := context.WithTimeout(ctx, m.connectTimeout())
	defer cancel()
	if err := ad.Disconnect(dcCtx, deviceID); err != nil {
		logger.Warn("Adapter disconnect failed",
			zap.String("device_id", deviceID.String()),
			zap.Error(err),
		)
	}

	m.transition(l, domaindevice.StateOffline)
	return nil
}

// Hold places the device in maintenance. Allowed from online or error;
// only Release exits maintenance.
func (m *Manager) Hold(ctx context.Context, deviceID uuid.UUID) error {
	m.mu.RLock()
	l, ok := m.links[deviceID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	if state != domaindevice.StateOnline && state != domaindevice.StateError {
		return fmt.Errorf("%w: maintenance hold requires online or error, device is %s",
			apperrors.ErrInvalidTransition, state)
	}

	m.stopHeartbeat(l)
	m.transition(l, domaindevice.StateMaintenance)

	logger.Info("Device placed under maintenance hold",
		zap.String("device_id", deviceID.String()),
		zap.String("event", "device_maintenance"),
	)
	return nil
}

// Release exits maintenance back to offline; the caller reconnects
// explicitly.
func (m *Manager) Release(ctx context.Context, deviceID uuid.UUID) error {
	m.mu.RLock()
	l, ok := m.links[deviceID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	if state != domaindevice.StateMaintenance {
		return fmt.Errorf("%w: release requires maintenance, device is %s",
			apperrors.ErrInvalidTransition, state)
	}

	m.transition(l, domaindevice.StateOffline)
	return nil
}

// Close stops all heartbeat loops and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.mu.RLock()
	for _, l := range m.links {
		m.stopHeartbeat(l)
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

func (m *Manager) track(deviceID uuid.UUID, kind domaindevice.TransportKind, connCfg adapter.ConnConfig) *link {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[deviceID]
	if !ok {
		l = &link{
			deviceID: deviceID,
			kind:     kind,
			state:    domaindevice.StateOffline,
		}
		m.links[deviceID] = l
	}
	l.connCfg = connCfg
	return l
}

// transition applies a state change, persists it best-effort, and
// notifies listeners outside the link lock.
func (m *Manager) transition(l *link, next domaindevice.ConnectionState) {
	l.mu.Lock()
	old := l.state
	if old == next {
		l.mu.Unlock()
		return
	}
	l.state = next
	if next == domaindevice.StateOnline {
		l.misses = 0
	}
	l.mu.Unlock()

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := m.devices.UpdateConnectionState(persistCtx, l.deviceID, next); err != nil {
		logger.Warn("Failed to persist connection state",
			zap.String("device_id", l.deviceID.String()),
			zap.String("state", string(next)),
			zap.Error(err),
		)
	}
	cancel()

	m.mu.RLock()
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(l.deviceID, old, next)
	}
}

// startHeartbeat polls the adapter link state at a fixed interval,
// independent of command traffic. Three consecutive non-online
// observations move the device to error.
func (m *Manager) startHeartbeat(l *link, ad adapter.Adapter) {
	l.mu.Lock()
	if l.stopHB != nil {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	l.stopHB = stop
	l.misses = 0
	l.mu.Unlock()

	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	missBudget := m.cfg.HeartbeatMisses
	if missBudget <= 0 {
		missBudget = 3
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				observed := ad.LinkState(l.deviceID)

				l.mu.Lock()
				if l.state != domaindevice.StateOnline {
					l.mu.Unlock()
					continue
				}
				if observed == domaindevice.StateOnline {
					l.misses = 0
					l.mu.Unlock()
					_ = m.devices.UpdateLastSeen(m.ctx, l.deviceID)
					continue
				}
				l.misses++
				missed := l.misses
				l.mu.Unlock()

				if missed >= missBudget {
					logger.Error("Heartbeat lost, marking device errored",
						zap.String("device_id", l.deviceID.String()),
						zap.Int("missed", missed),
						zap.String("event", "device_error"),
					)
					m.transition(l, domaindevice.StateError)
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeat(l *link) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopHB != nil {
		close(l.stopHB)
		l.stopHB = nil
	}
}

// Retry drives error→connecting→online for a device that lost its
// link, reusing the stored connection config.
func (m *Manager) Retry(ctx context.Context, deviceID uuid.UUID) error {
	m.mu.RLock()
	l, ok := m.links[deviceID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	l.mu.Lock()
	state := l.state
	connCfg := l.connCfg
	l.mu.Unlock()

	if state != domaindevice.StateError && state != domaindevice.StateOffline {
		return fmt.Errorf("%w: retry requires error or offline, device is %s",
			apperrors.ErrInvalidTransition, state)
	}

	m.stopHeartbeat(l)
	return m.Connect(ctx, deviceID, connCfg)
}

func (m *Manager) connectTimeout() time.Duration {
	if m.cfg.ConnectTimeout > 0 {
		return m.cfg.ConnectTimeout
	}
	return 15 * time.Second
}
