package cmd

import (
	"fmt"

	"github.com/encodeous/loadng/core"
	"github.com/encodeous/loadng/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Inspects the current state of loadng",
	Run: func(cmd *cobra.Command, args []string) {
		sock, err := controlSocket(cmd)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		result, err := core.IPCGet(sock, "inspect")
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "ld",
}

var discoverCmd = &cobra.Command{
	Use:   "discover [addr]",
	Short: "Asks a running node to discover a route",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sock, err := controlSocket(cmd)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		result, err := core.IPCGet(sock, "discover "+args[0])
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "ld",
}

// controlSocket returns the socket given on the command line, falling back to the node config
func controlSocket(cmd *cobra.Command) (string, error) {
	if sock, _ := cmd.Flags().GetString("socket"); sock != "" {
		return sock, nil
	}
	cfg, err := state.ReadNodeConfig(state.NodeConfigPath)
	if err != nil {
		return "", err
	}
	if cfg.ControlSocket == "" {
		return "", fmt.Errorf("%s has no control_socket", state.NodeConfigPath)
	}
	return cfg.ControlSocket, nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(discoverCmd)
	inspectCmd.Flags().StringP("socket", "s", "", "control socket of the running node")
	discoverCmd.Flags().StringP("socket", "s", "", "control socket of the running node")
}
