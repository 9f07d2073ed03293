package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	MqttCfg          *MqttConfig
	PrinterCfg       *PrinterConfig
	SchedulerCfg     *SchedulerConfig
	BaseTopic        string
	TopicPrefix      string
	HTTPAddr         string
	DatabaseURL      string
	MigrationsFolder string
	LogLevel         string
}

type MqttConfig struct {
	Host     string
	Username string
	Password string
	ClientID string
}

// PrinterConfig locates the OctoPrint REST API. PushEvents reads the printer
// events from the push socket instead of the MQTT event topics.
type PrinterConfig struct {
	URL        string
	APIKey     string
	PushEvents bool
}

// SchedulerConfig holds the tuning knobs read straight from the environment.
type SchedulerConfig struct {
	CooldownPollInterval time.Duration `env:"COOLDOWN_POLL_INTERVAL" envDefault:"5s"`
	PrinterTimeout       time.Duration `env:"PRINTER_TIMEOUT" envDefault:"10s"`
	StateEchoSchedule    string        `env:"STATE_ECHO_SCHEDULE" envDefault:"@every 5m"`
}

func LoadSchedulerConfig() (*SchedulerConfig, error) {
	cfg, err := env.ParseAs[SchedulerConfig]()
	if err != nil {
		return nil, fmt.Errorf("parsing scheduler config: %w", err)
	}
	if cfg.CooldownPollInterval <= 0 {
		return nil, fmt.Errorf("COOLDOWN_POLL_INTERVAL must be positive, got %s", cfg.CooldownPollInterval)
	}
	return &cfg, nil
}
