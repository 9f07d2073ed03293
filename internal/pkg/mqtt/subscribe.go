package mqtt

import (
	"fmt"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Subscribe registers handler for topic. While disconnected the subscription is
// only recorded and is sent to the broker on the next connect.
func (s *service) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}

	s.mu.Lock()
	s.subscriptions[topic] = subscription{qos: s.qos, handler: handler}
	s.mu.Unlock()

	if !s.IsConnected() {
		return nil
	}

	token := s.client.Subscribe(topic, s.qos, s.wrapHandler(handler))
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: %s timed out", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	s.logger.Debug("subscribed", zap.String("topic", topic))
	return nil
}

func (s *service) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	delete(s.subscriptions, topic)
	s.mu.Unlock()

	if !s.IsConnected() {
		return nil
	}

	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: %s timed out", ErrUnsubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// HasSubscription checks the exact topic string, not pattern matching.
func (s *service) HasSubscription(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscriptions[topic]
	return ok
}

// restoreSubscriptions runs in the paho connect callback and must not block on
// the tokens.
func (s *service) restoreSubscriptions() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for topic, sub := range s.subscriptions {
		s.client.Subscribe(topic, sub.qos, s.wrapHandler(sub.handler))
	}
}

func (s *service) wrapHandler(handler MessageHandler) paho_mqtt.MessageHandler {
	return func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("mqtt handler panic recovered", zap.String("topic", msg.Topic()), zap.Any("panic", r))
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			s.logger.Warn("mqtt handler returned error", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
}
