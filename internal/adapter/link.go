package adapter

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lab-device-hub/internal/domain/device"
)

// LinkTable is the shared bookkeeping every transport driver embeds:
// per-device link state, counters and a bounded reading buffer.
type LinkTable struct {
	mu    sync.RWMutex
	links map[uuid.UUID]*linkEntry
}

type linkEntry struct {
	state   device.ConnectionState
	stats   LinkStats
	pending []Reading
}

const maxBufferedReadings = 1024

func NewLinkTable() *LinkTable {
	return &LinkTable{links: make(map[uuid.UUID]*linkEntry)}
}

// Open marks the device link online, creating the entry on first use.
func (t *LinkTable) Open(deviceID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	entry, ok := t.links[deviceID]
	if !ok {
		entry = &linkEntry{}
		t.links[deviceID] = entry
	}
	entry.state = device.StateOnline
	entry.stats.ConnectCount++
	entry.stats.ConnectedAt = &now
}

// Close marks the link offline and discards buffered readings.
func (t *LinkTable) Close(deviceID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.links[deviceID]; ok {
		entry.state = device.StateOffline
		entry.pending = nil
	}
}

// Known reports whether the device has ever been connected here.
func (t *LinkTable) Known(deviceID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.links[deviceID]
	return ok
}

func (t *LinkTable) State(deviceID uuid.UUID) device.ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if entry, ok := t.links[deviceID]; ok {
		return entry.state
	}
	return device.StateOffline
}

func (t *LinkTable) SetState(deviceID uuid.UUID, state device.ConnectionState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.links[deviceID]; ok {
		entry.state = state
	}
}

func (t *LinkTable) RecordCommand(deviceID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.links[deviceID]; ok {
		now := time.Now()
		entry.stats.CommandsSent++
		entry.stats.LastCommandAt = &now
	}
}

func (t *LinkTable) RecordError(deviceID uuid.UUID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.links[deviceID]; ok {
		now := time.Now()
		entry.stats.LastError = err.Error()
		entry.stats.LastErrorAt = &now
	}
}

// Push buffers a reading for the device, dropping the oldest entry once
// the buffer is full so a stalled consumer cannot grow memory unbounded.
func (t *LinkTable) Push(deviceID uuid.UUID, r Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.links[deviceID]
	if !ok || entry.state != device.StateOnline {
		return
	}
	if len(entry.pending) >= maxBufferedReadings {
		entry.pending = entry.pending[1:]
	}
	entry.pending = append(entry.pending, r)
	entry.stats.PointsRead++
}

// Drain returns and clears buffered readings without blocking.
func (t *LinkTable) Drain(deviceID uuid.UUID) []Reading {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.links[deviceID]
	if !ok || len(entry.pending) == 0 {
		return nil
	}
	out := entry.pending
	entry.pending = nil
	return out
}

func (t *LinkTable) Stats(deviceID uuid.UUID) LinkStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if entry, ok := t.links[deviceID]; ok {
		return entry.stats
	}
	return LinkStats{}
}
