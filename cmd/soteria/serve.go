package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soteriadm/soteria/server/config"
	"github.com/soteriadm/soteria/server/datastore/mysql"
	"github.com/soteriadm/soteria/server/fleetapi"
	"github.com/soteriadm/soteria/server/mapping"
	"github.com/soteriadm/soteria/server/posture"
	"github.com/soteriadm/soteria/server/service"
	"github.com/soteriadm/soteria/server/snapshot"
	"github.com/soteriadm/soteria/server/sync"
	"github.com/soteriadm/soteria/server/version"
)

func createServeCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon",
		Long: `
Runs one sync cycle immediately, then repeats on the configured interval
until interrupted.`,
		Run: func(cmd *cobra.Command, args []string) {
			conf := configManager.LoadConfig()
			logger := initLogger(conf.Logging)
			instanceID := uuid.NewString()
			logger = kitlog.With(logger, "component", "serve", "instance_id", instanceID)

			realClock := clock.C

			ds, err := mysql.New(conf.Mysql, realClock, mysql.Logger(logger))
			if err != nil {
				initFatal(logger, err, "initialize datastore")
			}
			defer ds.Close()

			tbl, err := mapping.Load()
			if err != nil {
				initFatal(logger, err, "load mapping dataset")
			}

			client, err := fleetapi.NewClient(conf.Fleet, logger)
			if err != nil {
				initFatal(logger, err, "initialize fleet client")
			}

			recorder := snapshot.NewRecorder(ds, realClock, logger)
			controller := sync.NewController(
				ds, client, recorder, realClock, logger,
				conf.Sync.Workers, conf.Sync.FailureTolerance,
			)
			engine := posture.NewEngine(ds, tbl, recorder, conf.Sync.TrendWindow, logger)
			svc := service.NewService(ds, controller, engine, logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			level.Info(logger).Log(
				"msg", "daemon started",
				"version", version.Version().Version,
				"fleet_url", conf.Fleet.URL,
				"interval", conf.Sync.Interval,
				"workers", conf.Sync.Workers,
				"mapped_safeguards", tbl.Len(),
			)
			runSyncLoop(ctx, svc, conf.Sync.Interval, logger)
			level.Info(logger).Log("msg", "daemon stopped")
		},
	}
}

// runSyncLoop runs one cycle immediately and then on every interval tick
// until the context is canceled. A failed cycle is logged and the loop keeps
// going; the next tick retries.
func runSyncLoop(ctx context.Context, svc *service.Service, interval time.Duration, logger kitlog.Logger) {
	runOnce := func() {
		summary, err := svc.TriggerSync(ctx)
		if err != nil {
			level.Error(logger).Log("msg", "sync cycle failed", "err", err)
			return
		}
		level.Info(logger).Log(
			"msg", "sync cycle complete",
			"run_id", summary.RunID,
			"hosts_changed", summary.HostsChanged,
			"policies_changed", summary.PoliciesChanged,
			"results_changed", summary.ResultsChanged,
			"partial_failures", len(summary.PartialFailures),
		)
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func initLogger(conf config.LoggingConfig) kitlog.Logger {
	var logger kitlog.Logger
	w := kitlog.NewSyncWriter(os.Stderr)
	if conf.JSON {
		logger = kitlog.NewJSONLogger(w)
	} else {
		logger = kitlog.NewLogfmtLogger(w)
	}
	if conf.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}

func initFatal(logger kitlog.Logger, err error, msg string) {
	level.Error(logger).Log("msg", msg, "err", err)
	os.Exit(1)
}
