package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"mixfm/config"
	"mixfm/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Creates or updates the MySQL schema for users, tracks, affinities, queue entries and unavailability records.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Println("migration complete")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
