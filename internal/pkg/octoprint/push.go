package octoprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
	"github.com/anicoll/mqtt-plug/pkg/sockets"
)

const (
	pushPath       = "/sockjs/websocket"
	reconnectDelay = 10 * time.Second
)

type loginResponse struct {
	Name    string `json:"name"`
	Session string `json:"session"`
}

type pushMessage struct {
	Event *struct {
		Type string `json:"type"`
	} `json:"event"`
}

// ListenEvents follows the OctoPrint push socket and hands every lifecycle event
// to handler until ctx is done. The socket is re-opened when it drops.
func (c *client) ListenEvents(ctx context.Context, handler func(model.PrinterEvent)) error {
	for {
		if err := c.listenOnce(ctx, handler); err != nil {
			c.logger.Warn("octoprint push socket", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *client) listenOnce(ctx context.Context, handler func(model.PrinterEvent)) error {
	login, err := c.passiveLogin(ctx)
	if err != nil {
		return err
	}
	auth, err := json.Marshal(map[string]any{"auth": login.Name + ":" + login.Session})
	if err != nil {
		return err
	}

	conn := sockets.New(
		sockets.WithHeader(http.Header{"X-Api-Key": []string{c.apiKey}}),
		sockets.OnConnected(func(conn sockets.Connection) {
			if err := conn.Send(auth); err != nil {
				c.logger.Warn("authenticating push socket", zap.Error(err))
			}
		}),
		sockets.OnMessage(func(msg []byte, _ sockets.Connection) {
			if event, ok := parsePushEvent(msg); ok {
				c.logger.Debug("printer event", zap.String("event", event.String()))
				handler(event)
			}
		}),
		sockets.OnError(func(err error) {
			c.logger.Warn("push socket closed", zap.Error(err))
		}),
	)
	if err := conn.Dial(ctx, pushURL(c.baseURL)); err != nil {
		return err
	}
	c.logger.Info("listening to octoprint events")

	select {
	case <-ctx.Done():
		return conn.Close()
	case <-conn.Done():
		return nil
	}
}

// passiveLogin exchanges the API key for the session the push socket wants.
func (c *client) passiveLogin(ctx context.Context) (loginResponse, error) {
	var login loginResponse
	payload, err := json.Marshal(map[string]bool{"passive": true})
	if err != nil {
		return login, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/login", bytes.NewReader(payload))
	if err != nil {
		return login, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return login, unexpected(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return login, fmt.Errorf("decoding login: %w", err)
	}
	return login, nil
}

func parsePushEvent(msg []byte) (model.PrinterEvent, bool) {
	var m pushMessage
	if err := json.Unmarshal(msg, &m); err != nil || m.Event == nil || m.Event.Type == "" {
		return "", false
	}
	return model.PrinterEvent(m.Event.Type), true
}

func pushURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + pushPath
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + pushPath
	}
	return baseURL + pushPath
}
