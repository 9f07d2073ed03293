package mqtt

import "errors"

var (
	ErrConnect           = errors.New("mqtt: unable to connect")
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrInvalidTopic      = errors.New("mqtt: topic cannot be empty")
)
