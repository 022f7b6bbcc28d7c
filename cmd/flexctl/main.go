package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/flex-integration/internal/api"
	"github.com/dgnsrekt/flex-integration/internal/backoff"
	"github.com/dgnsrekt/flex-integration/internal/bulk"
	"github.com/dgnsrekt/flex-integration/internal/config"
	"github.com/dgnsrekt/flex-integration/internal/notify"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}
	// stdout belongs to command output
	zapConfig.OutputPaths = []string{"stderr"}

	// Set log level from config
	if logCfg != nil && logCfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	// Add file output if enabled
	if logCfg != nil && logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("creating logs directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile := filepath.Join(logCfg.Directory, fmt.Sprintf("flexctl_%s.log", timestamp))
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logFile)
	}

	return zapConfig.Build()
}

// newAPIClient builds the Integration API client from the loaded config.
func newAPIClient() *api.HTTPClient {
	return api.NewClient(api.Options{
		BaseURL:              cfg.API.BaseURL,
		ClientID:             cfg.API.ClientID,
		ClientSecret:         cfg.API.ClientSecret,
		Timeout:              cfg.API.Timeout(),
		QueryRatePerSecond:   cfg.API.QueryRate,
		CommandRatePerSecond: cfg.API.CommandRate,
	}, logger)
}

func newRunner() *bulk.Runner {
	return bulk.NewRunner(cfg.Bulk.Policy(), backoff.SystemClock{}, logger)
}

// summaries reports bulk results on out and, when configured, over ntfy.
func summaries(out io.Writer) notify.Notifier {
	return notify.Multi{notify.NewPrinter(out), notify.New(&cfg.Notify, logger)}
}

// runPlan executes plan and reports the outcome. A failed plan is returned
// as an error so the process exits non-zero.
func runPlan(ctx context.Context, runner *bulk.Runner, n notify.Notifier, name string, plan bulk.Plan) (*bulk.Result, error) {
	result, err := runner.Run(ctx, plan)
	if err != nil {
		if notifyErr := n.SendFailure(ctx, name, result, err); notifyErr != nil {
			logger.Warn("failed to send failure summary", zap.Error(notifyErr))
		}
		return result, fmt.Errorf("%s: %d of %d completed: %w", name, result.Completed(), result.Planned, err)
	}
	if notifyErr := n.SendSuccess(ctx, name, result); notifyErr != nil {
		logger.Warn("failed to send success summary", zap.Error(notifyErr))
	}
	return result, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "flexctl",
		Short:        "Marketplace Integration API tooling: event watcher and bulk operations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				// Use basic logger for help commands
				var err error
				logger, err = setupLogger(verbose, nil)
				return err
			}

			// Load config
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}

			// Setup logger with config
			logger, err = setupLogger(verbose, &cfg.Logging)
			if err != nil {
				return err
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("FLEX_CONFIG"), "config file path (or set FLEX_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(bulkUpdateListingsCmd())
	rootCmd.AddCommand(createListingsCmd())
	rootCmd.AddCommand(approveListingsCmd())
	rootCmd.AddCommand(updateUserMetadataCmd())
	rootCmd.AddCommand(updateProfileImageCmd())
	rootCmd.AddCommand(welcomeEmailCmd())
	rootCmd.AddCommand(analyticsCmd())

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
