package octoprint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/mqtt-plug/internal/pkg/config"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

const printerJSON = `{
  "temperature": {
    "bed": {"actual": 41.5, "target": 0, "offset": 0},
    "tool0": {"actual": 180.2, "target": 0, "offset": 0}
  },
  "state": {
    "text": "Printing",
    "flags": {"operational": true, "printing": true, "pausing": false, "paused": false, "cancelling": false, "ready": false}
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&config.PrinterConfig{URL: srv.URL + "/", APIKey: "secret"}, WithHTTPClient(srv.Client()))
}

func TestState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/printer", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(printerJSON))
	})

	state, err := c.State(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.PrinterState{Text: "Printing", Operational: true, Printing: true}, state)
	busy, reason := state.Busy()
	assert.True(t, busy)
	assert.Equal(t, "printing", reason)
}

func TestCurrentTemperatures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(printerJSON))
	})

	temps, err := c.CurrentTemperatures(context.Background())
	require.NoError(t, err)

	require.NotNil(t, temps.Bed)
	require.NotNil(t, temps.Tool0)
	assert.InDelta(t, 41.5, temps.Bed.Actual, 0.001)
	assert.InDelta(t, 180.2, temps.Tool0.Actual, 0.001)
}

func TestPrinterNotConnected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Printer is not operational", http.StatusConflict)
	})

	state, err := c.State(context.Background())
	require.NoError(t, err)
	busy, _ := state.Busy()
	assert.False(t, busy)

	temps, err := c.CurrentTemperatures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Temperatures{}, temps)
}

func TestUnexpectedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Invalid API key", http.StatusForbidden)
	})

	_, err := c.State(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.ErrorIs(t, c.Disconnect(context.Background()), ErrUnexpectedStatus)
}

func TestCommands(t *testing.T) {
	tests := map[string]struct {
		call func(c *client) error
		path string
		body map[string]string
	}{
		"connect":    {call: func(c *client) error { return c.Connect(context.Background()) }, path: "/api/connection", body: map[string]string{"command": "connect"}},
		"disconnect": {call: func(c *client) error { return c.Disconnect(context.Background()) }, path: "/api/connection", body: map[string]string{"command": "disconnect"}},
		"palette2":   {call: func(c *client) error { return c.ConnectPalette2(context.Background()) }, path: "/api/plugin/palette2", body: map[string]string{"command": "connectOmega", "port": ""}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var gotPath string
			var gotBody map[string]string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				gotPath = r.URL.Path
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
				w.WriteHeader(http.StatusNoContent)
			})

			require.NoError(t, tc.call(c))
			assert.Equal(t, tc.path, gotPath)
			assert.Equal(t, tc.body, gotBody)
		})
	}
}
