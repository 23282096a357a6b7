// Command rtd is a demonstration daemon that wires the runtime library
// together for manual smoke-testing: config loader, async logger, event
// loop, and signal bridge, exercised end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/daemonrt/daemon"
	"github.com/yanet-platform/daemonrt/event"
	"github.com/yanet-platform/daemonrt/rtconf"
	"github.com/yanet-platform/daemonrt/rtlog"
)

var cmd struct {
	ConfigPath string
	Foreground bool
}

var rootCmd = &cobra.Command{
	Use:   "rtd",
	Short: "Runtime library smoke-test daemon",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().BoolVar(&cmd.Foreground, "foreground", false, "Run without detaching into a daemon")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrap := zap.NewDevelopmentConfig()
	bootstrap.Development = false
	bootLog, err := bootstrap.Build()
	if err != nil {
		return fmt.Errorf("build bootstrap logger: %w", err)
	}
	defer bootLog.Sync()

	warn := rtconf.DefaultWarningFunc(bootLog.Sugar())
	cfg, err := rtconf.LoadConfig(cmd.ConfigPath, warn)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var result *daemon.Result
	if !cmd.Foreground && cfg.PIDFile != "" && cfg.LogFile != "" {
		result, err = daemon.Daemonize(daemon.Config{
			LogFile:    cfg.LogFile,
			PIDFile:    cfg.PIDFile,
			DoubleFork: true,
		})
		if err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
		defer result.PIDFile.Close()
	}

	logCfg := rtlog.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.DebugFilter = cfg.Logging.DebugFilter
	logCfg.MaxOutputSize = cfg.Logging.MaxOutputSize
	if result != nil {
		fileOutput, err := rtlog.OpenFileOutput(cfg.LogFile)
		if err != nil {
			return err
		}
		logCfg.Output = fileOutput
		logCfg.Rotate = rtlog.RenameRotate(".1")
	}

	log, err := rtlog.New(logCfg)
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer log.Close()

	sugar := log.Sugar().Named("rtd")
	sugar.Infow("starting", "config", cmd.ConfigPath)

	loop, err := event.New(sugar, func() {
		sugar.Infow("reopen-log hook invoked")
	})
	if err != nil {
		return fmt.Errorf("start event loop: %w", err)
	}
	defer loop.Close()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	wg, gctx := errgroup.WithContext(runCtx)
	wg.Go(func() error {
		defer cancelRun()
		if err := loop.Run(nil); err != nil {
			return fmt.Errorf("event loop: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		return reportHeartbeat(gctx, sugar, 30*time.Second)
	})

	if err := wg.Wait(); err != nil {
		return err
	}

	sugar.Infow("stopped")
	return nil
}

// reportHeartbeat logs a liveness line on a fixed interval until ctx is
// canceled.
func reportHeartbeat(ctx context.Context, log *zap.SugaredLogger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			log.Debugw("heartbeat")
		}
	}
}
