package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/bascanada/logexplorer/pkg/server"
	"github.com/spf13/cobra"
)

var (
	port  int
	host  string
	watch bool
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Serve views, queries, slots and live tails over HTTP",
	Long: `Starts an HTTP server exposing the configured views: paged queries,
time slots, field values and live tails as server-sent events. The API is
described at /openapi.yaml.

The config file is watched and reloaded without restarting; clients on
/events are told about each reload.

Examples:
  logexplorer serve -p 8080
  curl -s localhost:8080/query -d '{"view":"errors","perPage":20}'
  curl -N 'localhost:8080/tail?view=errors'`,
	PreRun: onCommandStart,
	RunE: func(cmd *cobra.Command, _ []string) error {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel(logger.Level)}))

		path, err := config.Path(configPath)
		if err != nil {
			return err
		}
		slogger.Info("loading configuration", "path", path)
		cfg, err := config.Load(path)
		if err != nil {
			switch {
			case errors.Is(err, config.ErrConfigParse):
				slogger.Error("invalid configuration file format", "path", path, "err", err, "hint", "check YAML/JSON syntax and types")
			case errors.Is(err, config.ErrNoBackends):
				slogger.Error("configuration missing 'backends' section", "path", path, "err", err, "hint", "add a 'backends' section or run 'logexplorer configure'")
			default:
				slogger.Error("failed to load configuration", "path", path, "err", err)
			}
			return err
		}
		backends, err := newBackends(cfg.Backends)
		if err != nil {
			return fmt.Errorf("backends: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := server.NewServer(host, strconv.Itoa(port), cfg, backends, slogger)
		if watch {
			if err := s.WatchConfig(ctx, path); err != nil {
				slogger.Warn("config not watched", "err", err)
			}
		}
		return s.Start(ctx)
	},
}

// slogLevel maps the --logging-level names onto slog levels.
func slogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVarP(&host, "host", "H", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().BoolVar(&watch, "watch", true, "Reload the config file when it changes")
	rootCmd.AddCommand(serveCmd)
}
