package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OutletCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_plug_outlet_commands_total",
			Help: "Outlet switch commands by device, command and result.",
		},
		[]string{"device", "command", "result"},
	)
	SchedulesArmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_plug_schedules_armed_total",
			Help: "Shutdown schedules armed by device and mode.",
		},
		[]string{"device", "mode"},
	)
	ShutdownsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_plug_shutdowns_suppressed_total",
			Help: "Power-offs skipped because the printer was busy, by device and reason.",
		},
		[]string{"device", "reason"},
	)
	StatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_plug_status_changes_total",
			Help: "Observed outlet power state changes by device.",
		},
		[]string{"device"},
	)
)

func init() {
	prometheus.MustRegister(OutletCommands, SchedulesArmed, ShutdownsSuppressed, StatusChanges)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
