package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/config"
	"lab-device-hub/internal/connection"
	domaincommand "lab-device-hub/internal/domain/command"
	domaindevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/logger"
	apperrors "lab-device-hub/pkg/errors"
)

// SessionResolver lets the dispatcher attribute commands to the active
// session without owning session state.
type SessionResolver interface {
	ActiveSessionID(deviceID uuid.UUID) (uuid.UUID, bool)
	AttachCommand(sessionID, commandID uuid.UUID)
}

// CompletionListener observes terminal commands (executed, failed or
// cancelled). The usage monitor subscribes here.
type CompletionListener func(cmd *domaincommand.Command)

// Dispatcher owns command lifecycle: strict per-device FIFO execution,
// monotonic status transitions, session attribution. Commands for
// different devices run concurrently; commands for one device are
// serialized by that device's single worker goroutine.
type Dispatcher struct {
	registry *adapter.Registry
	conns    *connection.Manager
	devices  domaindevice.Repository
	commands domaincommand.Repository
	sessions SessionResolver
	cfg      config.DeviceConfig

	mu        sync.Mutex
	closed    bool
	queues    map[uuid.UUID]chan *queuedCommand
	inflight  map[uuid.UUID]*queuedCommand
	listeners []CompletionListener

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type queuedCommand struct {
	mu        sync.Mutex
	cmd       *domaincommand.Command
	cancelled bool
}

func NewDispatcher(
	registry *adapter.Registry,
	conns *connection.Manager,
	devices domaindevice.Repository,
	commands domaincommand.Repository,
	sessions SessionResolver,
	cfg config.DeviceConfig,
) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		conns:    conns,
		devices:  devices,
		commands: commands,
		sessions: sessions,
		cfg:      cfg,
		queues:   make(map[uuid.UUID]chan *queuedCommand),
		inflight: make(map[uuid.UUID]*queuedCommand),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnCompletion registers a terminal-command listener.
func (d *Dispatcher) OnCompletion(fn CompletionListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Submit validates connectivity, records the command and appends it to
// the device's FIFO queue. A device that is not online rejects the
// command immediately: the record is terminal failed and nothing is
// queued.
func (d *Dispatcher) Submit(ctx context.Context, deviceID uuid.UUID, requesterID, operation string, params map[string]any) (*domaincommand.Command, error) {
	dev, err := d.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	cmd := &domaincommand.Command{
		ID:          uuid.New(),
		DeviceID:    deviceID,
		RequesterID: requesterID,
		Operation:   operation,
		Parameters:  params,
		Status:      domaincommand.StatusPending,
		SubmittedAt: time.Now(),
	}

	if d.conns.State(deviceID) != domaindevice.StateOnline {
		detail := apperrors.ErrDeviceNotOnline.Error()
		now := time.Now()
		transition(cmd, domaincommand.StatusFailed)
		cmd.ErrorDetail = &detail
		cmd.CompletedAt = &now
		if err := d.commands.Create(ctx, cmd); err != nil {
			logger.Warn("Failed to record rejected command", zap.Error(err))
		}
		return cmd, apperrors.ErrDeviceNotOnline
	}

	if sessionID, ok := d.sessions.ActiveSessionID(deviceID); ok {
		cmd.SessionID = &sessionID
	}

	if err := d.commands.Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("failed to record command: %w", err)
	}

	queued := &queuedCommand{cmd: cmd}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.finish(queued, nil, apperrors.ErrDispatcherClosed)
		return cmd, apperrors.ErrDispatcherClosed
	}
	queue, ok := d.queues[deviceID]
	if !ok {
		depth := d.cfg.CommandQueueDepth
		if depth <= 0 {
			depth = 64
		}
		queue = make(chan *queuedCommand, depth)
		d.queues[deviceID] = queue
		d.wg.Add(1)
		go d.worker(dev.Transport, deviceID, queue)
	}

	// The enqueue stays under the lock; Close takes the same lock before
	// closing queues, so the send never hits a closed channel.
	enqueued := false
	select {
	case queue <- queued:
		d.inflight[cmd.ID] = queued
		enqueued = true
	default:
	}
	d.mu.Unlock()

	if !enqueued {
		d.finish(queued, nil, apperrors.ErrQueueFull)
		return cmd, apperrors.ErrQueueFull
	}

	if cmd.SessionID != nil {
		d.sessions.AttachCommand(*cmd.SessionID, cmd.ID)
	}

	return cmd, nil
}

// Cancel marks a pending or sent command cancelled. A command already
// executing cannot be stopped; only its eventual record reflects the
// outcome.
func (d *Dispatcher) Cancel(ctx context.Context, commandID uuid.UUID) (*domaincommand.Command, error) {
	d.mu.Lock()
	queued, ok := d.inflight[commandID]
	d.mu.Unlock()
	if !ok {
		cmd, err := d.commands.GetByID(ctx, commandID)
		if err != nil {
			return nil, apperrors.ErrCommandNotFound
		}
		return cmd, apperrors.ErrCommandNotActive
	}

	queued.mu.Lock()
	if queued.cmd.Status == domaincommand.StatusExecuting || queued.cmd.Status.Terminal() {
		queued.mu.Unlock()
		return queued.cmd, apperrors.ErrCommandNotActive
	}
	queued.cancelled = true
	queued.mu.Unlock()

	return queued.cmd, nil
}

// Get returns the tracked or persisted command record.
func (d *Dispatcher) Get(ctx context.Context, commandID uuid.UUID) (*domaincommand.Command, error) {
	d.mu.Lock()
	if queued, ok := d.inflight[commandID]; ok {
		d.mu.Unlock()
		queued.mu.Lock()
		defer queued.mu.Unlock()
		snapshot := *queued.cmd
		return &snapshot, nil
	}
	d.mu.Unlock()

	cmd, err := d.commands.GetByID(ctx, commandID)
	if err != nil {
		return nil, apperrors.ErrCommandNotFound
	}
	return cmd, nil
}

// Close drains workers. Submissions arriving afterwards are rejected
// with ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.cancel()
	d.mu.Lock()
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.queues = make(map[uuid.UUID]chan *queuedCommand)
	d.mu.Unlock()
	d.wg.Wait()
}

// worker executes the device's commands strictly in submission order.
func (d *Dispatcher) worker(kind domaindevice.TransportKind, deviceID uuid.UUID, queue chan *queuedCommand) {
	defer d.wg.Done()

	ad, err := d.registry.Lookup(kind)
	if err != nil {
		// Registry misconfiguration: fail everything queued for the device.
		for queued := range queue {
			d.finish(queued, nil, err)
		}
		return
	}

	for {
		select {
		case <-d.ctx.Done():
			return
		case queued, ok := <-queue:
			if !ok {
				return
			}
			d.execute(ad, queued)
		}
	}
}

func (d *Dispatcher) execute(ad adapter.Adapter, queued *queuedCommand) {
	queued.mu.Lock()
	if queued.cancelled {
		queued.mu.Unlock()
		d.finishCancelled(queued)
		return
	}
	transition(queued.cmd, domaincommand.StatusSent)
	queued.mu.Unlock()
	d.persist(queued)

	// Last cancellation window closes here.
	queued.mu.Lock()
	if queued.cancelled {
		queued.mu.Unlock()
		d.finishCancelled(queued)
		return
	}
	transition(queued.cmd, domaincommand.StatusExecuting)
	cmd := queued.cmd
	queued.mu.Unlock()
	d.persist(queued)

	timeout := d.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	result, err := ad.SendCommand(ctx, cmd.DeviceID, cmd.Operation, cmd.Parameters)
	cancel()

	d.finish(queued, result, err)
}

func (d *Dispatcher) finishCancelled(queued *queuedCommand) {
	queued.mu.Lock()
	now := time.Now()
	transition(queued.cmd, domaincommand.StatusCancelled)
	queued.cmd.CompletedAt = &now
	snapshot := *queued.cmd
	queued.mu.Unlock()

	d.persist(queued)
	d.untrack(snapshot.ID)
	d.notify(&snapshot)
}

func (d *Dispatcher) finish(queued *queuedCommand, result map[string]any, err error) {
	queued.mu.Lock()
	now := time.Now()
	queued.cmd.CompletedAt = &now
	if err != nil {
		detail := err.Error()
		transition(queued.cmd, domaincommand.StatusFailed)
		queued.cmd.ErrorDetail = &detail
	} else {
		transition(queued.cmd, domaincommand.StatusExecuted)
		queued.cmd.Result = result
	}
	snapshot := *queued.cmd
	queued.mu.Unlock()

	d.persist(queued)
	d.untrack(snapshot.ID)

	if err != nil {
		logger.Warn("Command failed",
			zap.String("command_id", snapshot.ID.String()),
			zap.String("device_id", snapshot.DeviceID.String()),
			zap.String("operation", snapshot.Operation),
			zap.Error(err),
		)
	} else {
		logger.Debug("Command executed",
			zap.String("command_id", snapshot.ID.String()),
			zap.String("device_id", snapshot.DeviceID.String()),
			zap.String("operation", snapshot.Operation),
		)
	}

	d.notify(&snapshot)
}

// transition applies a status change through the lifecycle guard. A
// move the lifecycle forbids leaves the record untouched; callers hold
// the command's lock.
func transition(cmd *domaincommand.Command, next domaincommand.Status) {
	if !cmd.Status.CanTransition(next) {
		logger.Warn("Refused command status regression",
			zap.String("command_id", cmd.ID.String()),
			zap.String("from", string(cmd.Status)),
			zap.String("to", string(next)),
		)
		return
	}
	cmd.Status = next
}

func (d *Dispatcher) persist(queued *queuedCommand) {
	queued.mu.Lock()
	snapshot := *queued.cmd
	queued.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.commands.Update(ctx, &snapshot); err != nil {
		logger.Warn("Failed to persist command state",
			zap.String("command_id", snapshot.ID.String()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) untrack(commandID uuid.UUID) {
	d.mu.Lock()
	delete(d.inflight, commandID)
	d.mu.Unlock()
}

func (d *Dispatcher) notify(cmd *domaincommand.Command) {
	d.mu.Lock()
	listeners := make([]CompletionListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(cmd)
	}
}
