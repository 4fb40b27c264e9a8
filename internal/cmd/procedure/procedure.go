// Package procedure wires configuration and startup for the procedure
// engine command.
package procedure

import (
	"context"
	"flag"
	"fmt"

	platformcmd "github.com/firmdesk/firmdesk/internal/platform/cmd"
	"github.com/firmdesk/firmdesk/internal/services/procedure/app"
)

// Config holds the procedure command configuration. Environment variables
// provide defaults; flags override them.
type Config struct {
	HTTPAddr    string `env:"FIRMDESK_PROCEDURE_ADDR" envDefault:":8084"`
	DBPath      string `env:"FIRMDESK_PROCEDURE_DB_PATH" envDefault:"data/procedure.db"`
	TokenSecret string `env:"FIRMDESK_TOKEN_SECRET"`
	TokenIssuer string `env:"FIRMDESK_TOKEN_ISSUER" envDefault:"firmdesk"`

	NotifyWorkers   int `env:"FIRMDESK_PROCEDURE_NOTIFY_WORKERS" envDefault:"4"`
	NotifyQueueSize int `env:"FIRMDESK_PROCEDURE_NOTIFY_QUEUE" envDefault:"256"`
}

// ParseConfig loads the environment defaults and parses flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path")
	fs.IntVar(&cfg.NotifyWorkers, "notify-workers", cfg.NotifyWorkers, "notification worker count")
	fs.IntVar(&cfg.NotifyQueueSize, "notify-queue", cfg.NotifyQueueSize, "notification queue size")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	if cfg.TokenSecret == "" {
		return Config{}, fmt.Errorf("FIRMDESK_TOKEN_SECRET is required")
	}
	return cfg, nil
}

// Run starts the procedure server and blocks until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceProcedure, func(ctx context.Context) error {
		server, err := app.NewServer(app.Config{
			HTTPAddr:        cfg.HTTPAddr,
			DBPath:          cfg.DBPath,
			TokenSecret:     cfg.TokenSecret,
			TokenIssuer:     cfg.TokenIssuer,
			NotifyWorkers:   cfg.NotifyWorkers,
			NotifyQueueSize: cfg.NotifyQueueSize,
		})
		if err != nil {
			return fmt.Errorf("init procedure server: %w", err)
		}
		defer server.Close()

		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve procedure: %w", err)
		}
		return nil
	})
}
