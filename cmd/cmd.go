package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/mqtt-plug/internal/pkg/config"
	"github.com/anicoll/mqtt-plug/internal/pkg/database"
	"github.com/anicoll/mqtt-plug/internal/pkg/database/migration"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
	"github.com/anicoll/mqtt-plug/internal/pkg/mqtt"
	"github.com/anicoll/mqtt-plug/internal/pkg/notifier"
	"github.com/anicoll/mqtt-plug/internal/pkg/octoprint"
	"github.com/anicoll/mqtt-plug/internal/pkg/plug"
	"github.com/anicoll/mqtt-plug/internal/pkg/publisher"
	"github.com/anicoll/mqtt-plug/internal/pkg/server"
)

const (
	cleanupSchedule = "0 3 * * *"
	shutdownTimeout = 5 * time.Second
)

var errCron = errors.New("cron error")

func MqttPlugCommand(ctx *cli.Context) error {
	schedulerCfg, err := config.LoadSchedulerConfig()
	if err != nil {
		return err
	}

	cfg := &config.Config{
		MqttCfg: &config.MqttConfig{
			Host:     ctx.String("mqtt-host"),
			Username: ctx.String("mqtt-user"),
			Password: ctx.String("mqtt-pass"),
			ClientID: ctx.String("mqtt-client-id"),
		},
		PrinterCfg: &config.PrinterConfig{
			URL:        ctx.String("octoprint-url"),
			APIKey:     ctx.String("octoprint-api-key"),
			PushEvents: ctx.Bool("octoprint-push-events"),
		},
		SchedulerCfg:     schedulerCfg,
		BaseTopic:        ctx.String("base-topic"),
		TopicPrefix:      ctx.String("topic-prefix"),
		HTTPAddr:         ctx.String("http-addr"),
		DatabaseURL:      ctx.String("database-url"),
		MigrationsFolder: ctx.String("migrations-folder"),
		LogLevel:         ctx.String("log-level"),
	}

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	db := database.NewDatabase(pool)
	defer db.Close()

	broker := mqtt.NewWithConfig(cfg.MqttCfg)
	if err := broker.Connect(); err != nil {
		return err
	}
	defer broker.Close()

	return serve(ctx, cfg, broker, octoprint.New(cfg.PrinterCfg), db)
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))), nil
}

// serve wires the plug core to its adapters and runs until ctx is done or a
// background job fails.
func serve(ctx context.Context, cfg *config.Config, transport plug.Transport, printer Printer, store Store) error {
	logger := zap.L()
	errorChan := make(chan error, 1000)
	eg, ctx := errgroup.WithContext(ctx)

	hub := notifier.NewHub()
	pub := publisher.New()
	if err := pub.RegisterPublisher("websocket", hub); err != nil {
		return err
	}
	if err := pub.RegisterPublisher("postgres", store); err != nil {
		return err
	}
	if cfg.BaseTopic != "" {
		echo := publisher.NewMQTTPublisher(transport, cfg.BaseTopic, model.ChannelNavbar, model.ChannelSidebar)
		if err := pub.RegisterPublisher("mqtt", echo); err != nil {
			return err
		}
	}

	schedulerCfg := cfg.SchedulerCfg
	if schedulerCfg == nil {
		schedulerCfg = &config.SchedulerConfig{
			CooldownPollInterval: plug.DefaultPollInterval,
			PrinterTimeout:       plug.DefaultPrinterTimeout,
			StateEchoSchedule:    "@every 5m",
		}
	}
	pushEvents := cfg.PrinterCfg != nil && cfg.PrinterCfg.PushEvents

	registry := plug.NewRegistry()
	tracker := plug.NewTracker(registry, pub)
	scheduler := plug.NewScheduler(registry, transport, printer, pub,
		plug.WithPollInterval(schedulerCfg.CooldownPollInterval),
		plug.WithPrinterTimeout(schedulerCfg.PrinterTimeout),
	)
	defer scheduler.Stop()
	dispatcher := plug.NewDispatcher(plug.DispatcherConfig{
		BaseTopic:   cfg.BaseTopic,
		TopicPrefix: cfg.TopicPrefix,
		PushEvents:  pushEvents,
	}, registry, scheduler, tracker, transport, printer, store, pub)

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	eg.Go(func() error {
		return hub.Run(ctx)
	})

	eg.Go(func() error {
		return runCron(ctx, schedulerCfg.StateEchoSchedule, dispatcher, store, errorChan)
	})

	if pushEvents {
		eg.Go(func() error {
			return printer.ListenEvents(ctx, dispatcher.HandleEvent)
		})
	}

	srv := &http.Server{
		Handler:      server.New(dispatcher, store, hub).Routes(),
		Addr:         cfg.HTTPAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		// handle any async errors from background jobs
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("background error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

type statePublisher interface {
	PublishStates()
}

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// runCron echoes the device states on echoSchedule and prunes the notification
// history every night.
func runCron(ctx context.Context, echoSchedule string, states statePublisher, db cleaner, errChan chan error) error {
	if err := db.Cleanup(ctx); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(echoSchedule, states.PublishStates); err != nil {
		return fmt.Errorf("%w: state echo schedule %q: %v", errCron, echoSchedule, err)
	}
	if _, err := c.AddFunc(cleanupSchedule, func() {
		if err := db.Cleanup(ctx); err != nil {
			zap.L().Error("error cleaning up database", zap.Error(err))
			errChan <- fmt.Errorf("%w: %v", errCron, err)
			return
		}
		zap.L().Info("notification history cleaned up")
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
