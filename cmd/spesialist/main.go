package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/config"
	"github.com/sykepenger/spesialist/internal/container"
	"github.com/sykepenger/spesialist/pkg/database"
	"github.com/sykepenger/spesialist/pkg/telemetry"
	"github.com/sykepenger/spesialist/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "spesialist",
		Short:         "Runs the command chains for sick-pay case events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file, skipped when missing")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(migrateCmd(opts))
	return root
}

// loadEnvFile exports the variables of path without overriding the environment
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return goerr.Wrap(err, "failed to load env file", goerr.V("path", path))
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize logger")
	}
	return logger, nil
}

func newLoggers(cfg *config.Config) (*zap.Logger, *zap.Logger, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	sensitive, err := utils.NewSensitiveLogger(utils.LoggerConfig{
		Level:      cfg.SensitiveLogger.Level,
		OutputPath: cfg.SensitiveLogger.OutputPath,
		Format:     cfg.SensitiveLogger.Format,
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize sensitive logger")
	}
	return logger, sensitive, nil
}

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume the bus and serve health endpoints until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			logger, sensitive, err := newLoggers(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer func() { _ = sensitive.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
				Endpoint:    cfg.Telemetry.Endpoint,
				ServiceName: cfg.Telemetry.ServiceName,
			})
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.Error("Failed to flush traces", zap.Error(err))
				}
			}()

			c, err := container.NewContainer(cfg.ToContainerConfig(), logger, container.WithSensitiveLogger(sensitive))
			if err != nil {
				return err
			}

			logger.Info("Starting spesialist",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.String("topic", cfg.Kafka.Topic),
				zap.String("group_id", cfg.Kafka.GroupID),
				zap.Any("features", cfg.Features))

			if err := c.Start(ctx); err != nil {
				logger.Error("Failed to start", utils.ErrorFields(err)...)
				return err
			}

			<-ctx.Done()
			logger.Info("Shutting down")

			return c.Close()
		},
	}
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.New(database.Config{
				Path:            cfg.Database.Path,
				MaxOpenConns:    cfg.Database.MaxOpenConns,
				MaxIdleConns:    cfg.Database.MaxIdleConns,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := database.NewMigrator(db, logger)
			if err := migrator.RunMigrations(database.Migrations()); err != nil {
				return err
			}

			applied, err := migrator.AppliedVersions()
			if err != nil {
				return err
			}
			versions := make([]int, 0, len(applied))
			for v := range applied {
				versions = append(versions, v)
			}
			sort.Ints(versions)
			fmt.Fprintf(cmd.OutOrStdout(), "applied migrations: %v\n", versions)
			return nil
		},
	}
}
