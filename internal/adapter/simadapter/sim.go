// Package simadapter is a scripted transport used by tests and demo
// deployments: results, failures and delays are programmable per device.
package simadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/domain/device"
	apperrors "lab-device-hub/pkg/errors"
)

// Script controls how the adapter answers for one device.
type Script struct {
	// ConnectErr, when set, makes Connect fail.
	ConnectErr error
	// CommandErr, when set, makes every SendCommand fail.
	CommandErr error
	// CommandDelay is waited before acknowledging a command.
	CommandDelay time.Duration
	// Responses maps operation name to the returned payload. Operations
	// absent from the map get a generic acknowledgement.
	Responses map[string]map[string]any
	// LinkDrop, when true, reports the link as errored to state polls.
	LinkDrop bool
}

type Adapter struct {
	links *adapter.LinkTable

	mu      sync.Mutex
	scripts map[uuid.UUID]*Script
}

func New() *Adapter {
	return &Adapter{
		links:   adapter.NewLinkTable(),
		scripts: make(map[uuid.UUID]*Script),
	}
}

func (a *Adapter) Kind() device.TransportKind {
	return device.TransportSim
}

// Program installs or replaces the script for a device.
func (a *Adapter) Program(deviceID uuid.UUID, script *Script) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[deviceID] = script
}

// FeedReading places a reading on the device buffer, as if the
// instrument had emitted it.
func (a *Adapter) FeedReading(deviceID uuid.UUID, r adapter.Reading) {
	a.links.Push(deviceID, r)
}

func (a *Adapter) Connect(ctx context.Context, deviceID uuid.UUID, _ adapter.ConnConfig) error {
	script := a.script(deviceID)
	if script.ConnectErr != nil {
		return script.ConnectErr
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: connect interrupted", apperrors.ErrTimeout)
	default:
	}

	a.links.Open(deviceID)
	return nil
}

func (a *Adapter) Disconnect(_ context.Context, deviceID uuid.UUID) error {
	a.links.Close(deviceID)
	return nil
}

func (a *Adapter) SendCommand(ctx context.Context, deviceID uuid.UUID, operation string, _ map[string]any) (map[string]any, error) {
	if !a.links.Known(deviceID) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	script := a.script(deviceID)
	if script.CommandDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: no acknowledgement for %q", apperrors.ErrTimeout, operation)
		case <-time.After(script.CommandDelay):
		}
	}

	a.links.RecordCommand(deviceID)

	if script.CommandErr != nil {
		a.links.RecordError(deviceID, script.CommandErr)
		return nil, script.CommandErr
	}
	if resp, ok := script.Responses[operation]; ok {
		return resp, nil
	}
	return map[string]any{"ack": true, "operation": operation}, nil
}

func (a *Adapter) ReadData(deviceID uuid.UUID) []adapter.Reading {
	return a.links.Drain(deviceID)
}

func (a *Adapter) LinkState(deviceID uuid.UUID) device.ConnectionState {
	if a.script(deviceID).LinkDrop {
		return device.StateError
	}
	return a.links.State(deviceID)
}

func (a *Adapter) LinkStats(deviceID uuid.UUID) adapter.LinkStats {
	return a.links.Stats(deviceID)
}

func (a *Adapter) script(deviceID uuid.UUID) *Script {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.scripts[deviceID]; ok {
		return s
	}
	s := &Script{}
	a.scripts[deviceID] = s
	return s
}
