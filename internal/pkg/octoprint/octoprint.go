package octoprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/config"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

var ErrUnexpectedStatus = errors.New("octoprint: unexpected status")

type Option func(*client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New returns a client for the OctoPrint REST API.
func New(cfg *config.PrinterConfig, opts ...Option) *client {
	c := &client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type temperatureData struct {
	Bed   *model.TemperatureReading `json:"bed"`
	Tool0 *model.TemperatureReading `json:"tool0"`
}

type printerResponse struct {
	Temperature temperatureData `json:"temperature"`
	State       struct {
		Text  string `json:"text"`
		Flags struct {
			Operational bool `json:"operational"`
			Printing    bool `json:"printing"`
			Pausing     bool `json:"pausing"`
			Paused      bool `json:"paused"`
			Cancelling  bool `json:"cancelling"`
		} `json:"flags"`
	} `json:"state"`
}

func (c *client) CurrentTemperatures(ctx context.Context) (model.Temperatures, error) {
	res, ok, err := c.printer(ctx)
	if err != nil || !ok {
		return model.Temperatures{}, err
	}
	return model.Temperatures{Bed: res.Temperature.Bed, Tool0: res.Temperature.Tool0}, nil
}

// State reads the job flags. A printer that is not connected is reported as
// idle.
func (c *client) State(ctx context.Context) (model.PrinterState, error) {
	res, ok, err := c.printer(ctx)
	if err != nil {
		return model.PrinterState{}, err
	}
	if !ok {
		return model.PrinterState{Text: "Closed"}, nil
	}
	flags := res.State.Flags
	return model.PrinterState{
		Text:        res.State.Text,
		Operational: flags.Operational,
		Printing:    flags.Printing,
		Pausing:     flags.Pausing,
		Paused:      flags.Paused,
		Cancelling:  flags.Cancelling,
	}, nil
}

func (c *client) Connect(ctx context.Context) error {
	return c.command(ctx, "/api/connection", map[string]string{"command": "connect"})
}

func (c *client) Disconnect(ctx context.Context) error {
	return c.command(ctx, "/api/connection", map[string]string{"command": "disconnect"})
}

// ConnectPalette2 asks the Palette 2 plugin to open its connection, which in
// turn connects the printer.
func (c *client) ConnectPalette2(ctx context.Context) error {
	return c.command(ctx, "/api/plugin/palette2", map[string]string{"command": "connectOmega", "port": ""})
}

// printer fetches the printer state. ok is false when OctoPrint answers 409,
// meaning no printer is connected.
func (c *client) printer(ctx context.Context) (printerResponse, bool, error) {
	var res printerResponse
	resp, err := c.do(ctx, http.MethodGet, "/api/printer", nil)
	if err != nil {
		return res, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return res, false, nil
	default:
		return res, false, unexpected(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, false, fmt.Errorf("decoding printer state: %w", err)
	}
	return res, true, nil
}

func (c *client) command(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return unexpected(resp)
	}
	c.logger.Debug("octoprint command sent", zap.String("path", path))
	return nil
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func unexpected(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
}
