package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errAlreadyRegistered = errors.New("publisher already registered")

const publishTimeout = 5 * time.Second

type publisher interface {
	// Publish delivers an encoded notification on channel.
	Publish(ctx context.Context, channel string, payload []byte) error
}

// service fans notifications out to every registered publisher. A failing
// publisher is logged and skipped.
type service struct {
	mu         sync.RWMutex
	publishers map[string]publisher
	logger     *zap.Logger
}

func New() *service {
	return &service{
		publishers: map[string]publisher{},
		logger:     zap.L(),
	}
}

func (s *service) RegisterPublisher(name string, p publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.publishers[name]; ok {
		return errAlreadyRegistered
	}
	s.publishers[name] = p
	return nil
}

func (s *service) Notify(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode notification", zap.Error(err), zap.String("channel", channel))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, p := range s.publishers {
		if err := p.Publish(ctx, channel, data); err != nil {
			s.logger.Error("failed to publish notification", zap.Error(err), zap.String("publisher", name), zap.String("channel", channel))
			continue
		}
		s.logger.Debug("published notification", zap.String("publisher", name), zap.String("channel", channel))
	}
}
