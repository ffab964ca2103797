package serialadapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/adapter/serialadapter"
	"lab-device-hub/internal/domain/device"
	apperrors "lab-device-hub/pkg/errors"
)

func serialConfig() adapter.ConnConfig {
	return adapter.ConnConfig{
		Parameters: map[string]any{
			"vendor_id":     0x2341,
			"product_id":    0x0043,
			"serial_number": "A9021X",
			"baud_rate":     115200,
		},
	}
}

func TestConnectRequiresVendorAndProduct(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()

	err := a.Connect(context.Background(), deviceID, adapter.ConnConfig{})
	assert.ErrorIs(t, err, apperrors.ErrAdapterError)

	err = a.Connect(context.Background(), deviceID, adapter.ConnConfig{
		Parameters: map[string]any{"vendor_id": 0x2341},
	})
	assert.ErrorIs(t, err, apperrors.ErrAdapterError)

	// JSON decoding hands numeric parameters over as float64.
	err = a.Connect(context.Background(), deviceID, adapter.ConnConfig{
		Parameters: map[string]any{"vendor_id": float64(0x2341), "product_id": float64(0x0043)},
	})
	require.NoError(t, err)
	require.NoError(t, a.Disconnect(context.Background(), deviceID))
}

func TestConnectOpensLink(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()

	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	assert.Equal(t, device.StateOnline, a.LinkState(deviceID))
}

func TestIdentifyEchoesConfiguration(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	result, err := a.SendCommand(context.Background(), deviceID, "identify", nil)
	require.NoError(t, err)
	assert.Equal(t, 0x2341, result["vendor_id"])
	assert.Equal(t, 0x0043, result["product_id"])
	assert.Equal(t, "A9021X", result["serial"])
}

func TestReadTempReturnsMeasurement(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	result, err := a.SendCommand(context.Background(), deviceID, "read-temp", nil)
	require.NoError(t, err)

	temp, ok := result["temperature_c"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, temp, 19.5)
	assert.LessOrEqual(t, temp, 22.5)
}

func TestUnknownOperationStillAcknowledges(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	result, err := a.SendCommand(context.Background(), deviceID, "recalibrate", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result["ack"])
	assert.Equal(t, "recalibrate", result["operation"])
}

func TestSendCommandToUnknownDevice(t *testing.T) {
	a := serialadapter.New()

	_, err := a.SendCommand(context.Background(), uuid.New(), "identify", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDevice)
}

func TestSendCommandOnClosedLink(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	require.NoError(t, a.Disconnect(context.Background(), deviceID))

	_, err := a.SendCommand(context.Background(), deviceID, "identify", nil)
	assert.ErrorIs(t, err, apperrors.ErrAdapterError)
}

func TestSendCommandHonorsCancellation(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.SendCommand(ctx, deviceID, "identify", nil)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestFeedAccumulatesReadings(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	var readings []adapter.Reading
	require.Eventually(t, func() bool {
		readings = append(readings, a.ReadData(deviceID)...)
		return len(readings) > 0
	}, 3*time.Second, 100*time.Millisecond)

	first := readings[0]
	assert.Equal(t, "temperature", first.Kind)
	assert.Equal(t, "C", first.Unit)
	assert.False(t, first.Timestamp.IsZero())

	// Drain leaves the buffer empty until the next emission.
	rest := a.ReadData(deviceID)
	for _, r := range rest {
		assert.Equal(t, "temperature", r.Kind)
	}
}

func TestCommandsAreCountedInLinkStats(t *testing.T) {
	a := serialadapter.New()
	deviceID := uuid.New()
	require.NoError(t, a.Connect(context.Background(), deviceID, serialConfig()))
	defer a.Disconnect(context.Background(), deviceID)

	_, err := a.SendCommand(context.Background(), deviceID, "identify", nil)
	require.NoError(t, err)
	_, err = a.SendCommand(context.Background(), deviceID, "read-temp", nil)
	require.NoError(t, err)

	stats := a.LinkStats(deviceID)
	assert.Equal(t, int64(2), stats.CommandsSent)
}
