package cmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/encodeous/loadng/state"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [addr]",
	Short: "Create a node configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := netip.ParseAddr(args[0])
		if err != nil {
			return fmt.Errorf("invalid node address: %w", err)
		}
		port, _ := cmd.Flags().GetUint16("port")
		neighbours, _ := cmd.Flags().GetStringToString("neighbour")

		nodeCfg := state.DefaultLocalCfg(id)
		nodeCfg.Listen = netip.AddrPortFrom(netip.IPv4Unspecified(), port)
		nodeCfg.ControlSocket, _ = cmd.Flags().GetString("socket")
		for addr, ep := range neighbours {
			n := state.NeighbourCfg{}
			n.Addr, err = netip.ParseAddr(addr)
			if err != nil {
				return fmt.Errorf("invalid neighbour address %s: %w", addr, err)
			}
			n.Endpoint, err = netip.ParseAddrPort(ep)
			if err != nil {
				return fmt.Errorf("invalid endpoint for %s: %w", addr, err)
			}
			nodeCfg.Neighbours = append(nodeCfg.Neighbours, n)
		}
		err = state.NodeConfigValidator(&nodeCfg)
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("output")
		if _, err := os.Stat(outPath); err == nil {
			if force, _ := cmd.Flags().GetBool("force"); !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", outPath)
			}
		}
		return state.WriteNodeConfig(outPath, nodeCfg)
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "node.yaml", "node config output file path")
	newCmd.Flags().Uint16P("port", "p", uint16(state.DefaultPort), "UDP port to use")
	newCmd.Flags().StringToStringP("neighbour", "N", nil, "neighbours as addr=host:port")
	newCmd.Flags().StringP("socket", "s", "", "control socket for loadng inspect")
	newCmd.Flags().BoolP("force", "f", false, "overwrite an existing config")
}
