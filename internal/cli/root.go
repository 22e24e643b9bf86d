package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kicho/internal/config"
	"kicho/internal/core"
	"kicho/internal/log"
	"kicho/internal/storage"
)

// app carries state shared by every kichoctl subcommand.
type app struct {
	dbPath string
	debug  bool

	cfg    *config.Config
	logger *log.Logger
	now    func() time.Time
}

// NewRootCommand returns the kichoctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{now: time.Now}

	rootCmd := &cobra.Command{
		Use:   "kichoctl",
		Short: "Administer a kicho bookkeeping database",
		Long: `kichoctl runs maintenance tasks against the kicho SQLite database.

It supports:
- Applying or rolling back schema migrations
- Listing and importing the chart of accounts
- Printing the general ledger of an owner
- Re-exporting ledgers when events were lost

Example:
  kichoctl accounts import chart.yaml
  kichoctl ledger --owner alice --fiscal-year 2024`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default is SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(a.migrateCommand())
	rootCmd.AddCommand(a.accountsCommand())
	rootCmd.AddCommand(a.ledgerCommand())
	rootCmd.AddCommand(a.exportCommand())
	return rootCmd
}

// Execute runs kichoctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.dbPath != "" {
		cfg.SQLiteDBPath = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.LogLevel
	if a.debug {
		level = "debug"
	}
	a.cfg = cfg
	a.logger = SetupLogger(cmd.ErrOrStderr(), level).WithComponent(log.ComponentCLI)
	return nil
}

func (a *app) openRepo() (*storage.SQLiteRepository, error) {
	a.logger.Debug("Opening database", "path", a.cfg.SQLiteDBPath)
	return InitSQLite(a.logger, a.cfg.SQLiteDBPath)
}

// currentFiscalYear is the fiscal year containing today.
func (a *app) currentFiscalYear() int {
	now := a.now()
	return Calendar(a.cfg).FiscalYear(core.NewDate(now.Year(), int(now.Month()), now.Day()))
}

func (a *app) migrateCommand() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.SQLiteDBPath
			if down {
				if err := storage.RollbackMigration(path); err != nil {
					return err
				}
				a.logger.Info("Rolled back one migration", "path", path)
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			}

			version, err := storage.RunMigrations(path)
			if err != nil {
				return err
			}
			a.logger.Info("Migrations applied", "path", path, "version", version)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}
