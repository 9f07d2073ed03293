package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/database"
	"github.com/anicoll/mqtt-plug/internal/pkg/metrics"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
	"github.com/anicoll/mqtt-plug/internal/pkg/plug"
)

// BasePath is where the plugin API is mounted.
const BasePath = "/api/plugin/mqtt_plug"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var (
	errMissingBody    = errors.New("missing request body")
	errInvalidBody    = errors.New("invalid request body")
	errUnknownCommand = errors.New("unknown command")
)

type plugService interface {
	TurnOn(id string) error
	TurnOff(id string) error
	CheckStatus(id string) model.Status
	ListDevices() []model.Device
	SaveDevice(ctx context.Context, payload model.DevicePayload) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id string) ([]model.Device, error)
	PostponeShutdown(id string) (model.SidebarInfo, error)
	CancelShutdown(id string) (model.SidebarInfo, error)
	ShutdownNow(id string) (model.SidebarInfo, error)
	Sidebar() model.SidebarInfo
	Navbar() model.NavbarInfo
}

type historyService interface {
	GetNotifications(ctx context.Context, limit int) ([]database.Notification, error)
}

type server struct {
	plugs   plugService
	history historyService
	ws      http.Handler
	logger  *zap.Logger
}

// New builds the HTTP API. history and ws are optional.
func New(ps plugService, history historyService, ws http.Handler) *server {
	return &server{plugs: ps, history: history, ws: ws, logger: zap.L()}
}

func (s *server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(_ *http.Request, origin string) bool { return origin != "" },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Api-Key"},
		AllowCredentials: true,
	}))
	r.Use(LoggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/command", s.PostCommand)
		r.Get("/devices", s.GetDevices)
		r.Post("/device/save", s.PostDeviceSave)
		r.Post("/device/delete", s.PostDeviceDelete)
		r.Get("/sidebar/info", s.GetSidebarInfo)
		r.Post("/sidebar/postpone", s.PostSidebarPostpone)
		r.Post("/sidebar/cancelShutdown", s.PostSidebarCancelShutdown)
		r.Post("/sidebar/shutdownNow", s.PostSidebarShutdownNow)
		r.Get("/navbar/info", s.GetNavbarInfo)
		if s.history != nil {
			r.Get("/notifications", s.GetNotifications)
		}
	})
	return r
}

func (s *server) PostCommand(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[commandRequest](r)
	if err != nil {
		handleError(w, err)
		return
	}
	if req.Dev == nil || req.Dev.ID == "" {
		s.logger.Warn("command without device data", zap.String("command", req.Command))
		handleError(w, fmt.Errorf("%w: dev.id is required", errInvalidBody))
		return
	}

	id := string(req.Dev.ID)
	switch req.Command {
	case "turnOn":
		err = s.plugs.TurnOn(id)
	case "turnOff":
		err = s.plugs.TurnOff(id)
	case "checkStatus":
		writeJSON(w, http.StatusOK, s.plugs.CheckStatus(id))
		return
	default:
		handleError(w, fmt.Errorf("%w: %q", errUnknownCommand, req.Command))
		return
	}
	if err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

func (s *server) GetDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.plugs.ListDevices())
}

func (s *server) PostDeviceSave(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[saveDeviceRequest](r)
	if err != nil {
		handleError(w, err)
		return
	}
	if req.Device == nil {
		handleError(w, fmt.Errorf("%w: missing device", errInvalidBody))
		return
	}

	devices, err := s.plugs.SaveDevice(r.Context(), *req.Device)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *server) PostDeviceDelete(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[deleteDeviceRequest](r)
	if err != nil {
		handleError(w, err)
		return
	}
	if req.DeviceID == "" {
		handleError(w, fmt.Errorf("%w: missing device", errInvalidBody))
		return
	}

	devices, err := s.plugs.DeleteDevice(r.Context(), string(req.DeviceID))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *server) GetSidebarInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.plugs.Sidebar())
}

func (s *server) PostSidebarPostpone(w http.ResponseWriter, r *http.Request) {
	s.sidebarAction(w, r, s.plugs.PostponeShutdown)
}

func (s *server) PostSidebarCancelShutdown(w http.ResponseWriter, r *http.Request) {
	s.sidebarAction(w, r, s.plugs.CancelShutdown)
}

func (s *server) PostSidebarShutdownNow(w http.ResponseWriter, r *http.Request) {
	s.sidebarAction(w, r, s.plugs.ShutdownNow)
}

func (s *server) GetNavbarInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.plugs.Navbar())
}

func (s *server) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			handleError(w, fmt.Errorf("%w: limit must be a positive integer", errInvalidBody))
			return
		}
		limit = min(l, maxHistoryLimit)
	}

	notifications, err := s.history.GetNotifications(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *server) sidebarAction(w http.ResponseWriter, r *http.Request, action func(id string) (model.SidebarInfo, error)) {
	req, err := unmarshalPayload[sidebarRequest](r)
	if err != nil {
		handleError(w, err)
		return
	}
	if req.Dev == nil || req.Dev.ID == "" {
		handleError(w, fmt.Errorf("%w: dev.id is required", errInvalidBody))
		return
	}

	info, err := action(string(req.Dev.ID))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func handleError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errMissingBody), errors.Is(err, errInvalidBody),
		errors.Is(err, errUnknownCommand), errors.Is(err, plug.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, plug.ErrDeviceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, plug.ErrPrinterBusy):
		status = http.StatusConflict
	case errors.Is(err, plug.ErrTransportUnavailable):
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errMissingBody
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return &out, nil
}
