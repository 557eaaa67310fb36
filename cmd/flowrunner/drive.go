package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/flowrunner/flowrunner/engine/driver"
	"github.com/flowrunner/flowrunner/engine/execution"
	"github.com/flowrunner/flowrunner/engine/flow"
	"github.com/flowrunner/flowrunner/engine/queue"
	"github.com/flowrunner/flowrunner/engine/queue/redistransport"
	"github.com/flowrunner/flowrunner/engine/task"
	"github.com/flowrunner/flowrunner/pkg/config"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

// driveCmd wires the core driver loop to either the in-process local queue
// or a Redis-backed remote queue. It takes no flow of its own -- embedding
// applications construct roots and call driver.Execute directly; this
// command exists to exercise the loop's ambient wiring (config, logging,
// metrics, optional remote transport) end to end.
func driveCmd() *cobra.Command {
	var queueName string
	var remote bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Run the batch-generation loop to completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			manager := config.NewManager(nil)
			defer manager.Close(ctx)
			cfg, err := manager.Load(ctx, config.NewDefaultProvider(), config.NewEnvProvider())
			if err != nil {
				return err
			}

			log := logger.NewLogger(&logger.Config{
				Level:      logger.LogLevel(cfg.Log.Level),
				Output:     cmd.OutOrStdout(),
				JSON:       cfg.Log.JSON,
				TimeFormat: "15:04:05",
			})
			ctx = logger.ContextWithLogger(ctx, log)

			exporter, err := otelprometheus.New()
			if err != nil {
				return err
			}
			meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
			metrics, err := driver.NewMetrics(meterProvider.Meter("flowrunner.driver"))
			if err != nil {
				return err
			}
			go serveMetrics(metricsAddr, log)

			reg := task.NewRegistry()
			var q queue.Queue
			if remote {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer rdb.Close()
				redistransport.RegisterCallback(reg, rdb, queueName)
				q = redistransport.New(rdb, queueName, reg)
			} else {
				q = queue.NewLocal(queueName, reg)
			}

			dcfg := driver.Config{
				BatchGapSleep: cfg.Driver.BatchGapSleep,
				PurgeAtStart:  cfg.Driver.PurgeAtStart,
				MaxBatchLen:   cfg.Driver.MaxBatchLen,
				PullMaxNum:    cfg.Driver.PullMaxNum,
				PullMaxWait:   cfg.Driver.PullMaxWait,
			}

			log.Info("driver starting", "queue", q.Name())
			return driver.Run(ctx, execution.New([]*flow.Flow{}), q, dcfg, metrics)
		},
	}

	cmd.Flags().StringVar(&queueName, "queue", "flowrunner", "execution queue name")
	cmd.Flags().BoolVar(&remote, "remote", false, "use the Redis-backed remote queue instead of the local in-process one")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")

	return cmd
}

func serveMetrics(addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server exited", "error", err)
	}
}
