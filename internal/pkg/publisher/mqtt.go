package publisher

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type transport interface {
	IsConnected() bool
	Publish(topic string, payload []byte, retained bool) error
}

// mqttPublisher mirrors the UI notifications under the base topic. Channels
// listed in retainedChannels describe state and are only sent when they change.
type mqttPublisher struct {
	transport        transport
	baseTopic        string
	retainedChannels map[string]bool
	last             sync.Map
	logger           *zap.Logger
}

func NewMQTTPublisher(t transport, baseTopic string, retainedChannels ...string) *mqttPublisher {
	p := &mqttPublisher{
		transport:        t,
		baseTopic:        baseTopic,
		retainedChannels: map[string]bool{},
		logger:           zap.L(),
	}
	for _, ch := range retainedChannels {
		p.retainedChannels[ch] = true
	}
	return p
}

func (p *mqttPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if !p.transport.IsConnected() {
		p.logger.Debug("skipping notification echo, mqtt not connected", zap.String("channel", channel))
		return nil
	}
	retained := p.retainedChannels[channel]
	if retained && !p.shouldUpdate(channel, string(payload)) {
		return nil
	}
	if err := p.transport.Publish(p.baseTopic+"plugin/mqtt_plug/"+channel, payload, retained); err != nil {
		p.last.Delete(channel)
		return err
	}
	return nil
}

func (p *mqttPublisher) shouldUpdate(channel, newValue string) bool {
	oldValue, exists := p.last.Load(channel)
	if exists && newValue == oldValue.(string) {
		return false
	}
	p.last.Store(channel, newValue)
	return true
}
