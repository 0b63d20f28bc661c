package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/hoxy/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "State store management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the state store tables",
		Long:  "Connects to the configured state store (sqlite file or MySQL database) and migrates its tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Connect migrates as part of opening the store.
	if _, err := db.Connect(cfg.Store); err != nil {
		return err
	}
	where := cfg.Store.Path
	if cfg.Store.Driver == "mysql" {
		where = fmt.Sprintf("%s:%d/%s", cfg.Store.Host, cfg.Store.Port, cfg.Store.Database)
	}
	fmt.Fprintf(out, "Migrated %d tables in %s store %s\n", len(db.AllModels()), cfg.Store.Driver, where)
	return nil
}
