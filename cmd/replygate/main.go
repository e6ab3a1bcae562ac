package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "replygate",
		Short: "Multi-channel assistant reply gateway",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and inbound pipeline",
		Run: func(_ *cobra.Command, _ []string) {
			runServe()
		},
	})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
