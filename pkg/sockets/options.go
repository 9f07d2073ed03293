package sockets

import (
	"net/http"
	"time"
)

func WithPingInterval(d time.Duration) func(*Conn) {
	return func(s *Conn) {
		s.pingInterval = d
	}
}

func WithPingMsg(msg []byte) func(*Conn) {
	return func(s *Conn) {
		s.pingMsg = msg
	}
}

// WithHeader sets the headers sent with the handshake request.
func WithHeader(h http.Header) func(*Conn) {
	return func(s *Conn) {
		s.header = h
	}
}

func InsecureSkipVerify() func(*Conn) {
	return func(s *Conn) {
		s.sslSkipVerify = true
	}
}

// OnMessage is called from the read loop, so messages are handled in order.
func OnMessage(f func([]byte, Connection)) func(*Conn) {
	return func(s *Conn) {
		s.onMessage = f
	}
}

func OnError(f func(error)) func(*Conn) {
	return func(s *Conn) {
		s.onError = f
	}
}

func OnConnected(f func(Connection)) func(*Conn) {
	return func(s *Conn) {
		s.onConnected = f
	}
}
