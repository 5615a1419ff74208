package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/commercestack/internal/config"
	"github.com/jmylchreest/commercestack/internal/database"
	"github.com/jmylchreest/commercestack/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	db, err := database.New(cfg.Database, nil, nil)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(&store.Job{}, &store.JobHistory{}, &store.Receipt{}); err != nil {
		return fmt.Errorf("running auto-migration: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
