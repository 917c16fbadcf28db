package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yungbote/mechdata-backend/internal/app"
	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/db"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// runtime carries what every subcommand needs to build the app.
type runtime struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool
	out     io.Writer
}

// RootCommand builds the mechdata command tree. out receives command output.
func RootCommand(out io.Writer) *cobra.Command {
	r := &runtime{v: viper.New(), out: out}

	rootCmd := &cobra.Command{
		Use:           "mechdata",
		Short:         "BattleTech unit ingestion and valuation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&r.cfgFile, "config", "", "Path to a config file (default ./mechdata.yaml)")
	pf.BoolVar(&r.jsonOut, "json", false, "Print results as JSON")
	pf.String("db-driver", "", "Database driver: sqlite or postgres")
	pf.String("db-dsn", "", "Database DSN")
	pf.String("log-mode", "", "Log mode: development or production")
	pf.String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return bindFlags(r.v, cmd.Root().PersistentFlags(), map[string]string{
			"db.driver": "db-driver",
			"db.dsn":    "db-dsn",
			"log.mode":  "log-mode",
			"log.level": "log-level",
		})
	}

	rootCmd.AddCommand(
		ingestCommand(r),
		resolveCommand(r),
		finalizeCommand(r),
		workerCommand(r),
		statusCommand(r),
		unresolvedCommand(r),
		aliasCommand(r),
		catalogCommand(r),
		migrateCommand(r),
		serveCommand(r),
	)
	return rootCmd
}

// bindFlags ties config keys to flags. Only flags set on the command line
// override file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("error binding flag %q: %w", name, err)
		}
	}
	return nil
}

func (r *runtime) loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(r.v, r.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// open loads configuration and wires the app. Callers must Close it. Local
// sqlite stores are always migrated; postgres only when migrate is set.
func (r *runtime) open(ctx context.Context, migrate bool) (*app.App, error) {
	cfg, log, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	migrate = migrate || strings.EqualFold(cfg.DB.Driver, db.DriverSQLite)
	a, err := app.New(ctx, cfg, log, migrate)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}
