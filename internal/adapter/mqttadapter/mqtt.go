// Package mqttadapter drives network instruments that speak MQTT.
//
// Each device owns a topic pair under the configured prefix:
// <prefix>/<topic>/data carries measurements published by the
// instrument, <prefix>/<topic>/cmd carries commands, and
// <prefix>/<topic>/ack carries command acknowledgements correlated by
// command id.
package mqttadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/logger"
	apperrors "lab-device-hub/pkg/errors"
	pkgmqtt "lab-device-hub/pkg/mqtt"
)

type Options struct {
	Client      *pkgmqtt.Client
	TopicPrefix string
	QoS         byte
}

// Adapter implements the transport contract over a shared MQTT broker
// connection.
type Adapter struct {
	opts  Options
	links *adapter.LinkTable

	mu        sync.Mutex
	connected bool
	topics    map[uuid.UUID]string
	pending   map[string]chan ackMessage
}

type dataMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Quality   *float64  `json:"quality,omitempty"`
}

type commandMessage struct {
	CommandID  string         `json:"command_id"`
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type ackMessage struct {
	CommandID string         `json:"command_id"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
}

func New(opts Options) *Adapter {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "lab/devices"
	}
	return &Adapter{
		opts:    opts,
		links:   adapter.NewLinkTable(),
		topics:  make(map[uuid.UUID]string),
		pending: make(map[string]chan ackMessage),
	}
}

func (a *Adapter) Kind() device.TransportKind {
	return device.TransportMQTT
}

func (a *Adapter) Connect(_ context.Context, deviceID uuid.UUID, cfg adapter.ConnConfig) error {
	topic, _ := cfg.Parameters["topic"].(string)
	if topic == "" {
		return fmt.Errorf("%w: mqtt connection config missing topic", apperrors.ErrAdapterError)
	}

	if err := a.ensureBroker(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrAdapterError, err)
	}

	a.mu.Lock()
	a.topics[deviceID] = topic
	a.mu.Unlock()

	dataTopic := fmt.Sprintf("%s/%s/data", a.opts.TopicPrefix, topic)
	ackTopic := fmt.Sprintf("%s/%s/ack", a.opts.TopicPrefix, topic)

	if err := a.opts.Client.Subscribe(dataTopic, a.opts.QoS, a.dataHandler(deviceID)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrAdapterError, err)
	}
	if err := a.opts.Client.Subscribe(ackTopic, a.opts.QoS, a.ackHandler); err != nil {
		_ = a.opts.Client.Unsubscribe(dataTopic)
		return fmt.Errorf("%w: %v", apperrors.ErrAdapterError, err)
	}

	a.links.Open(deviceID)

	logger.Info("MQTT link opened",
		zap.String("device_id", deviceID.String()),
		zap.String("topic", topic),
		zap.String("event", "mqtt_connected"),
	)

	return nil
}

func (a *Adapter) Disconnect(_ context.Context, deviceID uuid.UUID) error {
	a.mu.Lock()
	topic, ok := a.topics[deviceID]
	delete(a.topics, deviceID)
	a.mu.Unlock()

	if ok && a.opts.Client != nil {
		dataTopic := fmt.Sprintf("%s/%s/data", a.opts.TopicPrefix, topic)
		ackTopic := fmt.Sprintf("%s/%s/ack", a.opts.TopicPrefix, topic)
		if err := a.opts.Client.Unsubscribe(dataTopic, ackTopic); err != nil {
			logger.Warn("Failed to unsubscribe device topics",
				zap.String("device_id", deviceID.String()),
				zap.Error(err),
			)
		}
	}

	a.links.Close(deviceID)
	return nil
}

func (a *Adapter) SendCommand(ctx context.Context, deviceID uuid.UUID, operation string, params map[string]any) (map[string]any, error) {
	if !a.links.Known(deviceID) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	a.mu.Lock()
	topic, ok := a.topics[deviceID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}

	msg := commandMessage{
		CommandID:  uuid.New().String(),
		Operation:  operation,
		Parameters: params,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAdapterError, err)
	}

	ackCh := make(chan ackMessage, 1)
	a.mu.Lock()
	a.pending[msg.CommandID] = ackCh
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, msg.CommandID)
		a.mu.Unlock()
	}()

	cmdTopic := fmt.Sprintf("%s/%s/cmd", a.opts.TopicPrefix, topic)
	a.links.RecordCommand(deviceID)
	if err := a.opts.Client.Publish(cmdTopic, a.opts.QoS, false, payload); err != nil {
		a.links.RecordError(deviceID, err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAdapterError, err)
	}

	select {
	case ack := <-ackCh:
		if !ack.OK {
			err := fmt.Errorf("%w: %s", apperrors.ErrAdapterError, ack.Error)
			a.links.RecordError(deviceID, err)
			return nil, err
		}
		return ack.Result, nil
	case <-ctx.Done():
		err := fmt.Errorf("%w: no acknowledgement for %q", apperrors.ErrTimeout, operation)
		a.links.RecordError(deviceID, err)
		return nil, err
	}
}

func (a *Adapter) ReadData(deviceID uuid.UUID) []adapter.Reading {
	return a.links.Drain(deviceID)
}

func (a *Adapter) LinkState(deviceID uuid.UUID) device.ConnectionState {
	a.mu.Lock()
	connected := a.connected && a.opts.Client != nil && a.opts.Client.IsConnected()
	a.mu.Unlock()

	if !connected {
		// Broker outage takes every subscribed link down with it.
		if a.links.Known(deviceID) && a.links.State(deviceID) == device.StateOnline {
			return device.StateError
		}
	}
	return a.links.State(deviceID)
}

func (a *Adapter) LinkStats(deviceID uuid.UUID) adapter.LinkStats {
	return a.links.Stats(deviceID)
}

// ensureBroker lazily connects the shared broker client once.
func (a *Adapter) ensureBroker() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.opts.Client == nil {
		return fmt.Errorf("mqtt broker client is not configured")
	}
	if a.connected && a.opts.Client.IsConnected() {
		return nil
	}
	if err := a.opts.Client.Connect(); err != nil {
		return err
	}
	a.connected = true
	return nil
}

func (a *Adapter) dataHandler(deviceID uuid.UUID) pkgmqtt.MessageHandler {
	return func(topic string, payload []byte) {
		var msg dataMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("Invalid data payload",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		a.links.Push(deviceID, adapter.Reading{
			Timestamp: msg.Timestamp,
			Kind:      msg.Kind,
			Value:     msg.Value,
			Unit:      msg.Unit,
			Quality:   msg.Quality,
		})
	}
}

func (a *Adapter) ackHandler(topic string, payload []byte) {
	var ack ackMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		logger.Warn("Invalid ack payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	a.mu.Lock()
	ch, ok := a.pending[ack.CommandID]
	a.mu.Unlock()
	if ok {
		select {
		case ch <- ack:
		default:
		}
	}
}
