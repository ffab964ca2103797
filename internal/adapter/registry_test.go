package adapter_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/adapter/simadapter"
	"lab-device-hub/internal/domain/device"
	apperrors "lab-device-hub/pkg/errors"
)

func TestLookupRegisteredAdapter(t *testing.T) {
	registry := adapter.NewRegistry()
	sim := simadapter.New()
	registry.Register(sim)

	got, err := registry.Lookup(device.TransportSim)
	require.NoError(t, err)
	assert.Equal(t, device.TransportSim, got.Kind())
}

func TestLookupMissingAdapter(t *testing.T) {
	registry := adapter.NewRegistry()

	_, err := registry.Lookup(device.TransportMQTT)
	assert.ErrorIs(t, err, apperrors.ErrAdapterNotFound)
}

func TestKindsListsRegisteredTransports(t *testing.T) {
	registry := adapter.NewRegistry()
	assert.Empty(t, registry.Kinds())

	registry.Register(simadapter.New())
	assert.ElementsMatch(t, []device.TransportKind{device.TransportSim}, registry.Kinds())
}

func TestLinkTableBuffersWhileOnline(t *testing.T) {
	table := adapter.NewLinkTable()
	deviceID := uuid.New()

	// Readings for an unopened link are dropped.
	table.Push(deviceID, adapter.Reading{Kind: "temperature", Value: 20})
	assert.Nil(t, table.Drain(deviceID))

	table.Open(deviceID)
	table.Push(deviceID, adapter.Reading{Kind: "temperature", Value: 20})
	table.Push(deviceID, adapter.Reading{Kind: "temperature", Value: 21})

	drained := table.Drain(deviceID)
	require.Len(t, drained, 2)
	assert.Equal(t, 20.0, drained[0].Value)

	// Drain clears the buffer.
	assert.Nil(t, table.Drain(deviceID))
}

func TestLinkTableCloseDiscardsPending(t *testing.T) {
	table := adapter.NewLinkTable()
	deviceID := uuid.New()

	table.Open(deviceID)
	table.Push(deviceID, adapter.Reading{Kind: "light", Value: 400})
	table.Close(deviceID)

	assert.Equal(t, device.StateOffline, table.State(deviceID))
	assert.Nil(t, table.Drain(deviceID))
}

func TestLinkTableStats(t *testing.T) {
	table := adapter.NewLinkTable()
	deviceID := uuid.New()

	assert.Equal(t, adapter.LinkStats{}, table.Stats(deviceID))

	table.Open(deviceID)
	table.RecordCommand(deviceID)
	table.Push(deviceID, adapter.Reading{Kind: "temperature", Value: 20})

	stats := table.Stats(deviceID)
	assert.Equal(t, int64(1), stats.ConnectCount)
	assert.Equal(t, int64(1), stats.CommandsSent)
	assert.Equal(t, int64(1), stats.PointsRead)
	assert.NotNil(t, stats.ConnectedAt)
	assert.NotNil(t, stats.LastCommandAt)
}
