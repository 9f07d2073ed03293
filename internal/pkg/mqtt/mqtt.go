package mqtt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/config"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultQoS        = byte(1)
	disconnectQuiesce = 250 // milliseconds
)

// MessageHandler receives the messages of a subscription.
type MessageHandler = func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

type service struct {
	client  paho_mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *zap.Logger

	mu            sync.RWMutex
	subscriptions map[string]subscription
}

func New(client paho_mqtt.Client) *service {
	return &service{
		client:        client,
		qos:           defaultQoS,
		timeout:       defaultTimeout,
		logger:        zap.L(),
		subscriptions: map[string]subscription{},
	}
}

// NewWithConfig builds a reconnecting client. Subscriptions are restored on every
// (re)connect.
func NewWithConfig(cfg *config.MqttConfig) *service {
	s := New(nil)
	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(paho_mqtt.Client) {
		s.logger.Info("mqtt connected", zap.String("broker", cfg.Host))
		s.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ paho_mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	s.client = paho_mqtt.NewClient(opts)
	return s
}

func buildClientOptions(cfg *config.MqttConfig) *paho_mqtt.ClientOptions {
	broker := cfg.Host
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	// Handlers publish and wait on their own tokens, so they must not run on
	// the router goroutine.
	opts := paho_mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

func (s *service) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: no answer within %s", ErrConnect, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return nil
}

func (s *service) IsConnected() bool {
	return s.client.IsConnected()
}

func (s *service) Close() {
	s.client.Disconnect(disconnectQuiesce)
}

// Publish sends payload without waiting longer than the publish timeout for the
// broker acknowledgement.
func (s *service) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}
	token := s.client.Publish(topic, s.qos, retained, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: %s timed out", ErrPublishFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
