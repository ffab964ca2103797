package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/adapter/simadapter"
	"lab-device-hub/internal/config"
	"lab-device-hub/internal/connection"
	"lab-device-hub/internal/dispatch"
	domaincommand "lab-device-hub/internal/domain/command"
	domaindevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/infrastructure/memory"
	apperrors "lab-device-hub/pkg/errors"
)

// nopResolver stands in for the session manager when attribution is not
// under test.
type nopResolver struct{}

func (nopResolver) ActiveSessionID(uuid.UUID) (uuid.UUID, bool) { return uuid.Nil, false }
func (nopResolver) AttachCommand(uuid.UUID, uuid.UUID)          {}

// recordingResolver captures command attachment calls.
type recordingResolver struct {
	mu        sync.Mutex
	sessionID uuid.UUID
	attached  []uuid.UUID
}

func (r *recordingResolver) ActiveSessionID(uuid.UUID) (uuid.UUID, bool) {
	return r.sessionID, true
}

func (r *recordingResolver) AttachCommand(_, commandID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, commandID)
}

type dispatchRig struct {
	dispatcher *dispatch.Dispatcher
	sim        *simadapter.Adapter
	conns      *connection.Manager
	commands   *memory.CommandRepository
	devices    *memory.DeviceRepository
}

func newDispatchRig(t *testing.T, resolver dispatch.SessionResolver) *dispatchRig {
	t.Helper()

	sim := simadapter.New()
	registry := adapter.NewRegistry()
	registry.Register(sim)

	devices := memory.NewDeviceRepository()
	commands := memory.NewCommandRepository()

	cfg := config.DeviceConfig{
		HeartbeatInterval:  time.Minute,
		ConnectTimeout:     time.Second,
		CommandTimeout:     500 * time.Millisecond,
		MaxConnectAttempts: 1,
		CommandQueueDepth:  8,
	}

	conns := connection.NewManager(registry, devices, cfg)
	t.Cleanup(conns.Close)

	dispatcher := dispatch.NewDispatcher(registry, conns, devices, commands, resolver, cfg)
	t.Cleanup(dispatcher.Close)

	return &dispatchRig{
		dispatcher: dispatcher,
		sim:        sim,
		conns:      conns,
		commands:   commands,
		devices:    devices,
	}
}

func (r *dispatchRig) onlineDevice(t *testing.T) uuid.UUID {
	t.Helper()

	dev := &domaindevice.Device{
		HardwareUID: "SIM-" + uuid.NewString(),
		Transport:   domaindevice.TransportSim,
	}
	require.NoError(t, r.devices.Create(context.Background(), dev))
	require.NoError(t, r.conns.Connect(context.Background(), dev.ID, adapter.ConnConfig{}))
	return dev.ID
}

func waitTerminal(t *testing.T, d *dispatch.Dispatcher, commandID uuid.UUID) *domaincommand.Command {
	t.Helper()

	var final *domaincommand.Command
	require.Eventually(t, func() bool {
		cmd, err := d.Get(context.Background(), commandID)
		if err != nil {
			return false
		}
		if cmd.Status.Terminal() {
			final = cmd
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return final
}

func TestSubmitExecutesCommand(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	rig.sim.Program(deviceID, &simadapter.Script{
		Responses: map[string]map[string]any{
			"read-temp": {"value": 21.5, "unit": "C"},
		},
	})

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "read-temp", nil)
	require.NoError(t, err)
	require.Equal(t, domaincommand.StatusPending, cmd.Status)

	final := waitTerminal(t, rig.dispatcher, cmd.ID)
	assert.Equal(t, domaincommand.StatusExecuted, final.Status)
	assert.Equal(t, 21.5, final.Result["value"])
	assert.NotNil(t, final.CompletedAt)
}

func TestSubmitToUnknownDevice(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})

	_, err := rig.dispatcher.Submit(context.Background(), uuid.New(), "user-1", "identify", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDevice)
}

func TestSubmitToOfflineDeviceRejectsWithTerminalRecord(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})

	dev := &domaindevice.Device{
		HardwareUID: "SIM-" + uuid.NewString(),
		Transport:   domaindevice.TransportSim,
	}
	require.NoError(t, rig.devices.Create(context.Background(), dev))

	cmd, err := rig.dispatcher.Submit(context.Background(), dev.ID, "user-1", "identify", nil)
	assert.ErrorIs(t, err, apperrors.ErrDeviceNotOnline)
	require.NotNil(t, cmd)
	assert.Equal(t, domaincommand.StatusFailed, cmd.Status)
	assert.NotNil(t, cmd.ErrorDetail)
	assert.NotNil(t, cmd.CompletedAt)

	// The rejection is recorded but nothing reached the queue.
	stored, getErr := rig.commands.GetByID(context.Background(), cmd.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domaincommand.StatusFailed, stored.Status)
}

func TestPerDeviceFIFOOrder(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	rig.sim.Program(deviceID, &simadapter.Script{CommandDelay: 10 * time.Millisecond})

	const n = 5
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "step", nil)
		require.NoError(t, err)
		ids = append(ids, cmd.ID)
	}

	completions := make([]*domaincommand.Command, 0, n)
	for _, id := range ids {
		completions = append(completions, waitTerminal(t, rig.dispatcher, id))
	}

	for i := 1; i < n; i++ {
		prev, cur := completions[i-1], completions[i]
		require.Equal(t, domaincommand.StatusExecuted, cur.Status)
		assert.False(t, cur.CompletedAt.Before(*prev.CompletedAt),
			"command %d completed before its predecessor", i)
	}
}

func TestCommandTimeoutFails(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	// Delay beyond the configured command timeout.
	rig.sim.Program(deviceID, &simadapter.Script{CommandDelay: 2 * time.Second})

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "slow-op", nil)
	require.NoError(t, err)

	final := waitTerminal(t, rig.dispatcher, cmd.ID)
	assert.Equal(t, domaincommand.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorDetail)
	assert.Contains(t, *final.ErrorDetail, "timed out")
}

func TestCancelExecutingCommandRejected(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	rig.sim.Program(deviceID, &simadapter.Script{CommandDelay: 200 * time.Millisecond})

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "slow-op", nil)
	require.NoError(t, err)

	// Wait until the command reaches executing, then try to cancel.
	require.Eventually(t, func() bool {
		got, err := rig.dispatcher.Get(context.Background(), cmd.ID)
		return err == nil && got.Status == domaincommand.StatusExecuting
	}, time.Second, 2*time.Millisecond)

	_, cancelErr := rig.dispatcher.Cancel(context.Background(), cmd.ID)
	assert.ErrorIs(t, cancelErr, apperrors.ErrCommandNotActive)

	final := waitTerminal(t, rig.dispatcher, cmd.ID)
	assert.Equal(t, domaincommand.StatusExecuted, final.Status)
}

func TestCancelQueuedCommand(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	// The first command occupies the worker long enough for the second
	// to still be pending when cancelled.
	rig.sim.Program(deviceID, &simadapter.Script{CommandDelay: 200 * time.Millisecond})

	first, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "slow-op", nil)
	require.NoError(t, err)
	second, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "queued-op", nil)
	require.NoError(t, err)

	_, cancelErr := rig.dispatcher.Cancel(context.Background(), second.ID)
	require.NoError(t, cancelErr)

	finalSecond := waitTerminal(t, rig.dispatcher, second.ID)
	assert.Equal(t, domaincommand.StatusCancelled, finalSecond.Status)

	finalFirst := waitTerminal(t, rig.dispatcher, first.ID)
	assert.Equal(t, domaincommand.StatusExecuted, finalFirst.Status)
}

func TestCancelUnknownCommand(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})

	_, err := rig.dispatcher.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrCommandNotFound)
}

func TestSessionAttribution(t *testing.T) {
	resolver := &recordingResolver{sessionID: uuid.New()}
	rig := newDispatchRig(t, resolver)
	deviceID := rig.onlineDevice(t)

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "identify", nil)
	require.NoError(t, err)
	require.NotNil(t, cmd.SessionID)
	assert.Equal(t, resolver.sessionID, *cmd.SessionID)

	waitTerminal(t, rig.dispatcher, cmd.ID)

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	assert.Contains(t, resolver.attached, cmd.ID)
}

func TestCompletionListenerObservesTerminalStatus(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	var mu sync.Mutex
	var seen []domaincommand.Status
	rig.dispatcher.OnCompletion(func(cmd *domaincommand.Command) {
		mu.Lock()
		seen = append(seen, cmd.Status)
		mu.Unlock()
	})

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "identify", nil)
	require.NoError(t, err)
	waitTerminal(t, rig.dispatcher, cmd.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domaincommand.StatusExecuted, seen[0])
}

func TestCommandStatusSequenceIsMonotonic(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	// Slow enough that the intermediate statuses are observable.
	rig.sim.Program(deviceID, &simadapter.Script{CommandDelay: 100 * time.Millisecond})

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "slow-op", nil)
	require.NoError(t, err)

	observed := []domaincommand.Status{cmd.Status}
	require.Eventually(t, func() bool {
		got, err := rig.dispatcher.Get(context.Background(), cmd.ID)
		if err != nil {
			return false
		}
		if got.Status != observed[len(observed)-1] {
			observed = append(observed, got.Status)
		}
		return got.Status.Terminal()
	}, 2*time.Second, time.Millisecond)

	// Every observed change follows a legal forward edge; the lifecycle
	// never regresses and never leaves a terminal status.
	for i := 1; i < len(observed); i++ {
		assert.True(t, observed[i-1].CanTransition(observed[i]),
			"illegal edge %s -> %s", observed[i-1], observed[i])
	}
	assert.Equal(t, domaincommand.StatusPending, observed[0])
	assert.Equal(t, domaincommand.StatusExecuted, observed[len(observed)-1])
}

func TestSubmitAfterCloseRejected(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	deviceID := rig.onlineDevice(t)

	rig.dispatcher.Close()

	cmd, err := rig.dispatcher.Submit(context.Background(), deviceID, "user-1", "identify", nil)
	assert.ErrorIs(t, err, apperrors.ErrDispatcherClosed)
	require.NotNil(t, cmd)
	assert.Equal(t, domaincommand.StatusFailed, cmd.Status)
	assert.NotNil(t, cmd.CompletedAt)
}

func TestCrossDeviceParallelism(t *testing.T) {
	rig := newDispatchRig(t, nopResolver{})
	slowID := rig.onlineDevice(t)
	fastID := rig.onlineDevice(t)

	rig.sim.Program(slowID, &simadapter.Script{CommandDelay: 300 * time.Millisecond})

	slow, err := rig.dispatcher.Submit(context.Background(), slowID, "user-1", "slow-op", nil)
	require.NoError(t, err)
	fast, err := rig.dispatcher.Submit(context.Background(), fastID, "user-1", "fast-op", nil)
	require.NoError(t, err)

	finalFast := waitTerminal(t, rig.dispatcher, fast.ID)
	finalSlow := waitTerminal(t, rig.dispatcher, slow.ID)

	// The fast device must not have waited behind the slow one.
	assert.True(t, finalFast.CompletedAt.Before(*finalSlow.CompletedAt),
		"commands on different devices should run concurrently")
}
