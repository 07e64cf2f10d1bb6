package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type nowFunc func() time.Time

// application carries the dependencies shared by every subcommand.
type application struct {
	viper     *viper.Viper
	config    appConfig
	newLogger func() (*zap.Logger, error)
	openStore storeOpener
	now       nowFunc
	out       io.Writer
}

func newApplication() *application {
	return &application{
		viper:     viper.New(),
		newLogger: zap.NewProduction,
		openStore: openStore,
		now:       func() time.Time { return time.Now().UTC() },
		out:       os.Stdout,
	}
}

func main() {
	cmd := newRootCommand(newApplication())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cafestock: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cafestock",
		Short:         "Cafe inventory reconciliation and reorder engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app.viper, cmd)
			if err != nil {
				return err
			}
			app.config = cfg
			app.out = cmd.OutOrStdout()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "path to a YAML config file")
	flags.String(flagStoreDriver, defaultStoreDriver, "tabular store: gorm, pgx, sheets, xlsx or memory")
	flags.String(flagStoreURL, defaultStoreURL, "store location: database URL, spreadsheet id or workbook path")
	flags.String(flagSheetsCredential, "", "Google service account credentials file for the sheets driver")
	flags.String(flagBusinessTimezone, defaultBusinessTimezone, "IANA timezone that defines the business day")
	flags.String(flagRedisURL, "", "Redis URL for the shared run lock (empty uses a process-local lock)")
	flags.String(flagActor, defaultActor, "actor recorded on manual writes")

	cmd.AddCommand(
		newServeCommand(app),
		newScheduleCommand(app),
		newUsageCommand(app),
		newReorderCommand(app),
		newShoppingListCommand(app),
		newActionCommand(app),
		newNotifyCommand(app),
		newOnHandCommand(app),
		newSalesCommand(app),
		newAdjustCommand(app),
		newPurchaseCommand(app),
		newManualRowCommand(app),
	)
	return cmd
}

// withRuntime builds the service for one command invocation and tears it down afterwards.
func (app *application) withRuntime(ctx context.Context, run func(ctx context.Context, rt *runtime) error) error {
	logger, err := app.newLogger()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := buildRuntime(ctx, app.config, logger, app.openStore, app.now)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Warn("runtime cleanup failed", zap.Error(closeErr))
		}
	}()
	return run(ctx, rt)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
