package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"distributed-actor-rl/internal/coordinator"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "coordinator",
		Short:         "Hand out jobs and collect trajectories from actors",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = flag.Set("logtostderr", "true")
			_ = flag.CommandLine.Parse(nil)
		},
	}
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cmd.AddCommand(serveCommand())
	return cmd
}

func serveCommand() *cobra.Command {
	cfg := coordinator.DefaultConfig()
	var (
		redisAddr   string
		redisPrefix string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the coordinator HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := coordinator.New(cfg)
			if err != nil {
				return err
			}
			server := coordinator.NewServer(coord, cfg.Port)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
				case <-ctx.Done():
				}
				cancel()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				if err := server.Stop(shutdownCtx); err != nil {
					glog.Warningf("shutdown: %v", err)
				}
			}()

			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr})
				defer client.Close()
				if err := client.Ping(ctx).Err(); err != nil {
					return err
				}
				bridge := coordinator.NewBridge(coord, client, redisPrefix)
				go func() { _ = bridge.Run(ctx) }()
				glog.Infof("serving redis actors on %s prefix %q", redisAddr, redisPrefix)
			}

			glog.Infof("coordinator capacity=%d policy=%s episodes_per_job=%d", cfg.Capacity, cfg.Policy, cfg.EpisodesPerJob)
			return server.Start()
		},
	}
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP port")
	cmd.Flags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Replay buffer capacity")
	cmd.Flags().StringVar(&cfg.Policy, "policy", cfg.Policy, "Replay policy (fifo, freshness)")
	cmd.Flags().IntVarP(&cfg.EpisodesPerJob, "episodes-per-job", "e", cfg.EpisodesPerJob, "Episodes per issued job")
	cmd.Flags().IntVar(&cfg.MaxJobs, "max-jobs", cfg.MaxJobs, "Stop issuing jobs after this many (0 = unlimited)")
	cmd.Flags().Int64Var(&cfg.BaseSeed, "seed", cfg.BaseSeed, "Environment seed of the first job")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Also serve redis-mode actors through this Redis server")
	cmd.Flags().StringVar(&redisPrefix, "redis-prefix", "actor", "Key prefix shared with redis-mode actors")
	return cmd
}
