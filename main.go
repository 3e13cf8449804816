package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tournevent/uadirectory/internal/database"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/tournevent/uadirectory/pkg/carrier/catalog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "uadirectory",
	Short:   "Ukrainian carrier directory sync and lookup service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and GraphQL server with the sync scheduler",
	RunE:  runServe,
}

var syncCmd = &cobra.Command{
	Use:   "sync [carrier]",
	Short: "Refresh carrier directories now; all directory carriers when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSync,
}

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down|version",
	Short:     "Manage the database schema",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down", "version"},
	RunE:      runMigrate,
}

var carriersCmd = &cobra.Command{
	Use:   "carriers",
	Short: "List supported carriers",
	RunE:  runCarriers,
}

func init() {
	rootCmd.AddCommand(serveCmd, syncCmd, migrateCmd, carriersCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	}
	defer tracerShutdown(context.Background())

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	a := buildApp(ctx, cfg, db, logger, tracer, telemetry.NewMetrics(nil))
	if err := a.scheduleSyncs(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("Starting uadirectory",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Strings("carriers", a.factory.Enabled()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Run(gctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	}
	defer tracerShutdown(context.Background())

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	a := buildApp(ctx, cfg, db, logger, tracer, telemetry.NewMetrics(nil))

	carriers := directoryCarriers(a.factory)
	if len(args) == 1 {
		carriers = []string{carrier.NormalizeID(args[0])}
	}
	if len(carriers) == 0 {
		return fmt.Errorf("no enabled carrier publishes directories")
	}

	reports, err := a.orchestrator.RunAll(ctx, carriers)
	for _, r := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tcities=%d\twarehouses=%d\t%s\n",
			r.Carrier, r.Status, r.Cities, r.Warehouses, r.Duration)
	}
	return err
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Connect(ctx, cfg.DBType, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "up":
		return database.Migrate(db, cfg.DBType)
	case "down":
		return database.MigrateDown(db, cfg.DBType)
	case "version":
		v, dirty, err := database.Version(db, cfg.DBType)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}
}

func runCarriers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	factory := carrier.NewFactory(catalog.New(logger, nil), cfg.CarrierSettings())
	enabled := make(map[string]bool)
	for _, id := range factory.Enabled() {
		enabled[id] = true
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tDIRECTORIES\tENABLED")
	for _, c := range factory.Registry().Carriers() {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", c.ID, c.Label, c.SupportsDirectories, enabled[c.ID])
	}
	return w.Flush()
}
