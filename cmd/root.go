package cmd

import (
	"os"

	"github.com/encodeous/loadng/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loadng",
	Short: "LOADng Reactive Routing CLI",
	Long: `loadng is a reactive route discovery daemon for low power and lossy mesh networks.
Routes are only discovered when they are needed, by flooding a route request and unicasting the reply back along the reverse path.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize loadng",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "ld",
		Title: "loadng Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.NodeConfigPath, "node-config", "n", state.NodeConfigPath, "node-specific config")
}
