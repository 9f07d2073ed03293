package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

type Connection interface {
	Dial(ctx context.Context, url string) error
	Send(msg []byte) error
	// Done is closed once the connection is gone, whoever closed it.
	Done() <-chan struct{}
	io.Closer
}

type Conn struct {
	mu            sync.Mutex
	ws            *websocket.Conn
	closed        bool
	done          chan struct{}
	sslSkipVerify bool
	pingInterval  time.Duration
	pingMsg       []byte
	header        http.Header
	onError       func(err error)
	onMessage     func([]byte, Connection)
	onConnected   func(Connection)
}

func New(opts ...func(*Conn)) Connection {
	c := &Conn{done: make(chan struct{}), closed: true}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Closes the connection.
func (c *Conn) Close() error {
	c.close()
	return nil
}

func (c *Conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	_ = c.ws.Close()
	close(c.done)
	return true
}

func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err := c.ws.WriteMessage(websocket.TextMessage, msg)
	c.mu.Unlock()

	if err != nil {
		c.fail(err)
		return err
	}
	return nil
}

func (c *Conn) Dial(ctx context.Context, url string) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	conn, res, err := dialer.DialContext(ctx, url, c.header)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}

	c.mu.Lock()
	c.ws = conn
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	if c.onConnected != nil {
		go c.onConnected(c)
	}
	go c.readLoop(conn)
	c.setupPing()
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		c.onMsg(msg)
	}
}

// fail closes the connection and reports err unless it was closed on purpose.
func (c *Conn) fail(err error) {
	if c.close() && c.onError != nil {
		c.onError(err)
	}
}

func (c *Conn) onMsg(msg []byte) {
	// Fire OnMessage every time.
	if c.onMessage != nil {
		c.onMessage(msg, c)
	}
}

func (c *Conn) setupPing() {
	if c.pingInterval <= 0 || len(c.pingMsg) == 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	done := c.Done()
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if c.Send(c.pingMsg) != nil {
					return
				}
			}
		}
	}()
}
