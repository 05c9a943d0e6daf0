package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"distributed-actor-rl/internal/actor"
	"distributed-actor-rl/internal/config"
	"distributed-actor-rl/internal/worker"
)

var (
	configFile     string
	actorType      string
	commType       string
	coordinatorURL string
	redisAddr      string
	savePath       string
	printFreq      int
	plotMetrics    bool
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
		Use:           "actor-worker",
		Short:         "Run a rollout actor against a coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = flag.Set("logtostderr", "true")
			_ = flag.CommandLine.Parse(nil)
		},
	}
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cmd.AddCommand(runCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

func registry() *actor.Registry {
	return actor.NewRegistry(actor.PluginLoader{
		Fallback: actor.StaticLoader{"builtin": worker.Register},
	})
}

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create the configured actor and work through jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctrl, err := registry().Create(cfg)
			if err != nil {
				return err
			}
			glog.Infof("%s starting, communication=%s", ctrl, cfg.Actor.Communication.Type)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				// first signal finishes the episode, the second aborts
				<-sigCh
				glog.Infof("%s closing after the current episode", ctrl)
				_ = ctrl.Close()
				<-sigCh
				cancel()
			}()

			if err := ctrl.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", ctrl, err)
			}
			glog.Infof("%s stopped", ctrl)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&actorType, "actor-type", "", "Override actor.actor_type")
	cmd.Flags().StringVar(&commType, "comm-type", "", "Override actor.communication.type (http, redis)")
	cmd.Flags().StringVar(&coordinatorURL, "coordinator-url", "", "Override actor.communication.coordinator_url")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Override actor.communication.redis_addr")
	cmd.Flags().StringVarP(&savePath, "save", "s", "", "Override common.save_path")
	cmd.Flags().IntVar(&printFreq, "print-freq", 0, "Override actor.print_freq")
	cmd.Flags().BoolVar(&plotMetrics, "plot", false, "Plot metrics after every job")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if actorType != "" {
		cfg.Actor.ActorType = actorType
	}
	if commType != "" {
		cfg.Actor.Communication.Type = commType
	}
	if coordinatorURL != "" {
		cfg.Actor.Communication.CoordinatorURL = coordinatorURL
	}
	if redisAddr != "" {
		cfg.Actor.Communication.RedisAddr = redisAddr
	}
	if savePath != "" {
		cfg.Common.SavePath = savePath
	}
	if printFreq != 0 {
		cfg.Actor.PrintFreq = printFreq
	}
	if cmd.Flags().Changed("plot") {
		cfg.Actor.PlotMetrics = plotMetrics
	}
	return cfg, cfg.Validate()
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actor types provided by the configured modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			reg := registry()
			if err := reg.LoadModules(cfg.Actor.ImportNames); err != nil {
				return err
			}
			for _, name := range reg.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
