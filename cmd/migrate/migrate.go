// Package migrate contains the command to perform database migrations.
package migrate

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfga/mpath/cmd/util"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage/migrate"
)

const (
	versionFlag          = "version"
	timeoutFlag          = "timeout"
	verboseMigrationFlag = "verbose"

	versionKey = "migrate.version"
	timeoutKey = "migrate.timeout"
	verboseKey = "migrate.verbose"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database schema migrations needed for the node table",
		Long: `The migrate command creates or upgrades the node table of the sql datastores.
The memory, badger and mongo engines keep no versioned schema and are skipped.`,
		RunE: runMigration,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()

	flags.Uint(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")
	flags.Duration(timeoutFlag, 1*time.Minute, "a timeout for the time it takes the migrate process to connect to the database")
	flags.Bool(verboseMigrationFlag, false, "enable verbose migration logs (default false)")

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlags

	return cmd
}

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlags(command *cobra.Command, _ []string) {
	flags := command.Flags()

	util.MustBindPFlag(versionKey, flags.Lookup(versionFlag))
	util.MustBindEnv(versionKey, "MPATH_MIGRATE_VERSION")

	util.MustBindPFlag(timeoutKey, flags.Lookup(timeoutFlag))
	util.MustBindEnv(timeoutKey, "MPATH_MIGRATE_TIMEOUT")

	util.MustBindPFlag(verboseKey, flags.Lookup(verboseMigrationFlag))
	util.MustBindEnv(verboseKey, "MPATH_MIGRATE_VERBOSE", "MPATH_VERBOSE")
}

func runMigration(cmd *cobra.Command, _ []string) error {
	cfg, err := util.ReadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	return migrate.RunMigrations(cmd.Context(), migrate.MigrationConfig{
		Engine:        cfg.Datastore.Engine,
		URI:           cfg.Datastore.URI,
		Username:      cfg.Datastore.Username,
		Password:      cfg.Datastore.Password,
		TargetVersion: viper.GetUint(versionKey),
		Timeout:       viper.GetDuration(timeoutKey),
		Verbose:       viper.GetBool(verboseKey),
		Logger:        log,
	})
}
