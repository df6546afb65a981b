package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/webitel/realtime-hub/config"
)

const (
	ServiceName      = "realtime-hub"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Realtime notification hub for restaurants, customers and riders",
		Version: version + " (" + commit + "@" + branch + ")",
		Commands: []*cli.Command{
			serverCmd(),
			monitorCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the realtime HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:  "env_file",
				Usage: "Path to a dotenv file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "http_addr",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "log_level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "missed_policy",
				Usage: "Fate of notifications nobody receives (drop, log, publish)",
			},
			&cli.StringFlag{
				Name:  "amqp_url",
				Usage: "AMQP broker URL; empty keeps messaging in-process",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(
				config.WithFile(c.String("config_file")),
				config.WithEnvFile(c.String("env_file")),
				config.WithFlags(overrides(c)),
			)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}
			slog.Info("SERVICE_STARTED",
				"service", ServiceName,
				"version", version,
				"commit", commit,
				"commit_date", commitDate,
				"build", buildTimestamp,
			)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

// overrides maps the cli flags the user actually set onto the config flag set.
func overrides(c *cli.Context) *pflag.FlagSet {
	fs := config.Flags()
	for cliName, key := range map[string]string{
		"http_addr":     "http.addr",
		"log_level":     "log.level",
		"missed_policy": "socket.missed_policy",
		"amqp_url":      "amqp.url",
	} {
		if c.IsSet(cliName) {
			_ = fs.Set(key, c.String(cliName))
		}
	}
	return fs
}
