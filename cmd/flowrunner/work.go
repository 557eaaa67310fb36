package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/flowrunner/flowrunner/engine/queue/redistransport"
	"github.com/flowrunner/flowrunner/engine/task"
	"github.com/flowrunner/flowrunner/engine/worker"
	"github.com/flowrunner/flowrunner/pkg/config"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

func workCmd() *cobra.Command {
	var queueName string
	var concurrency int
	var leaseMaxNum int

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Lease and execute tasks from a remote execution queue",
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

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()

			reg := task.NewRegistry()
			redistransport.RegisterCallback(reg, rdb, queueName)
			q := redistransport.New(rdb, queueName, reg, redistransport.WithLeaseDuration(cfg.Worker.LeaseDuration))

			wcfg := worker.Config{
				Concurrency:       concurrency,
				LeaseMaxNum:       leaseMaxNum,
				EmptyPollWait:     cfg.Worker.EmptyPollWait,
				MaxPollsPerSecond: 10,
			}
			log.Info("worker starting", "queue", queueName, "concurrency", concurrency)
			return worker.Run(ctx, q, reg, wcfg)
		},
	}

	cmd.Flags().StringVar(&queueName, "queue", "flowrunner", "remote execution queue name")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "max tasks executed concurrently per lease")
	cmd.Flags().IntVar(&leaseMaxNum, "lease-max-num", 1, "max tasks requested per lease")

	return cmd
}
