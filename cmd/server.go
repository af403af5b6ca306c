package cmd

import (
	"github.com/spf13/cobra"

	"mixfm/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP server",
	Long:  `Runs the mixfm HTTP server: queue generation, feedback, library sync and the player push channel.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
