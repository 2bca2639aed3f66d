package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/internal/app"
	"github.com/yourorg/inventory-api/internal/config"
	"github.com/yourorg/inventory-api/internal/events"
	"github.com/yourorg/inventory-api/internal/logger"
	"github.com/yourorg/inventory-api/internal/processor"
)

func main() {
	if err := execute(&runtime{}, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs the command tree and always releases what PersistentPreRunE
// opened, including when a command fails.
func execute(rt *runtime, args []string) error {
	root := newRootCmd(rt)
	root.SetArgs(args)
	defer rt.close()
	return root.Execute()
}

type runtime struct {
	cfg  config.Config
	log  *zap.Logger
	deps *app.Deps
	proc *processor.Processor
}

func (rt *runtime) close() {
	if rt.deps != nil {
		rt.deps.Close()
		rt.deps = nil
	}
	if rt.log != nil {
		_ = rt.log.Sync()
		rt.log = nil
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "processor",
		Short:         "Optimizes uploaded vehicle photos for the DMS feed",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotenv(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			rt.cfg = config.Load()
			log, err := logger.New(logger.Options{Level: rt.cfg.LogLevel, Format: rt.cfg.LogFormat, Name: "processor"})
			if err != nil {
				return err
			}
			rt.log = log
			if err := rt.cfg.ValidateWorker(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			deps, err := app.Open(cmd.Context(), rt.cfg, log)
			if err != nil {
				return err
			}
			rt.deps = deps
			rt.proc, err = app.NewProcessor(rt.cfg, deps, events.NewInMemory(1), log)
			return err
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load outside production")

	root.AddCommand(newRunCmd(rt), newOnceCmd(rt), newImageCmd(rt))
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (rt *runtime) sweepJob() *processor.SweepJob {
	return &processor.SweepJob{Processor: rt.proc, Config: rt.cfg.Sweep, Log: rt.log.Named("sweep")}
}

func newRunCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sweep for pending images on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return rt.sweepJob().Run(ctx)
		},
	}
}

func newOnceCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sweep pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			res, err := rt.sweepJob().RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "found=%d processed=%d failed=%d skipped=%d\n",
				res.Found, res.Processed, res.Failed, res.Skipped)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newImageCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "image <image-id>",
		Short: "Process one image synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := rt.proc.Process(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "image %s optimized\n", args[0])
			return nil
		},
	}
}
