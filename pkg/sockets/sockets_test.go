package sockets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every text message with the same payload prefixed by "echo:".
func echoServer(t *testing.T, received chan<- string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			http.Error(w, "missing header", http.StatusForbidden)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- string(msg)
			if err := ws.WriteMessage(websocket.TextMessage, append([]byte("echo:"), msg...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func header() http.Header {
	return http.Header{"X-Test": []string{"yes"}}
}

func TestConn_DialSendReceive(t *testing.T) {
	received := make(chan string, 10)
	url := echoServer(t, received)
	messages := make(chan string, 10)
	connected := make(chan struct{})

	c := New(
		WithHeader(header()),
		OnConnected(func(conn Connection) {
			assert.NoError(t, conn.Send([]byte("hello")))
			close(connected)
		}),
		OnMessage(func(msg []byte, _ Connection) {
			messages <- string(msg)
		}),
	)
	require.NoError(t, c.Dial(context.Background(), url))
	defer c.Close()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("OnConnected was not called")
	}
	select {
	case msg := <-messages:
		assert.Equal(t, "echo:hello", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
	assert.Equal(t, "hello", <-received)
}

func TestConn_Ping(t *testing.T) {
	received := make(chan string, 10)
	url := echoServer(t, received)

	c := New(WithHeader(header()), WithPingInterval(10*time.Millisecond), WithPingMsg([]byte("ping")))
	require.NoError(t, c.Dial(context.Background(), url))
	defer c.Close()

	select {
	case msg := <-received:
		assert.Equal(t, "ping", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestConn_Close(t *testing.T) {
	url := echoServer(t, make(chan string, 10))
	errs := make(chan error, 1)

	c := New(WithHeader(header()), OnError(func(err error) { errs <- err }))
	require.NoError(t, c.Dial(context.Background(), url))
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed")
	}
	assert.ErrorIs(t, c.Send([]byte("late")), ErrClosed)
	assert.Empty(t, errs)
}

func TestConn_DialRejected(t *testing.T) {
	url := echoServer(t, make(chan string, 10))

	err := New().Dial(context.Background(), url)
	assert.Error(t, err)
}

func TestConn_ServerGone(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ws.Close()
	}))
	defer srv.Close()
	errs := make(chan error, 1)

	c := New(OnError(func(err error) { errs <- err }))
	require.NoError(t, c.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")))

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("OnError not called")
	}
	<-c.Done()
}
