package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/mqtt-plug/cmd"
)

func main() {
	app := &cli.App{
		Name:   "mqtt-plug",
		Usage:  "switches printer outlets over mqtt and powers them off after a print",
		Action: cmd.MqttPlugCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mqtt-host",
				EnvVars:  []string{"MQTT_HOST"},
				Value:    "",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-client-id",
				EnvVars: []string{"MQTT_CLIENT_ID"},
				Value:   "mqtt-plug",
			},
			&cli.StringFlag{
				Name:    "base-topic",
				Usage:   "prefix the print server publishes its events under, e.g. octoPrint/",
				EnvVars: []string{"BASE_TOPIC"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "topic-prefix",
				Usage:   "prefix used to derive the topics of new devices",
				EnvVars: []string{"TOPIC_PREFIX"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:     "octoprint-url",
				EnvVars:  []string{"OCTOPRINT_URL"},
				Value:    "",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "octoprint-api-key",
				EnvVars:  []string{"OCTOPRINT_API_KEY"},
				Value:    "",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "octoprint-push-events",
				Usage:   "read printer events from the OctoPrint push socket instead of mqtt",
				EnvVars: []string{"OCTOPRINT_PUSH_EVENTS"},
				Value:   false,
			},
			&cli.StringFlag{
				Name:     "database-url",
				EnvVars:  []string{"DATABASE_URL"},
				Value:    "",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "migrations-folder",
				EnvVars:  []string{"MIGRATIONS_FOLDER"},
				Value:    "",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
