package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/encodeous/loadng/core"
	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/state"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulates route discovery over an in-memory line of nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("nodes")
		latency, _ := cmd.Flags().GetDuration("latency")
		loss, _ := cmd.Flags().GetFloat64("loss")
		ack, _ := cmd.Flags().GetBool("ack")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		level := slog.LevelWarn
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
			state.DBG_log_route = true
		}
		if count < 2 {
			return fmt.Errorf("need at least 2 nodes, got %d", count)
		}

		vn := link.NewVirtualNetwork()
		defer vn.Close()
		ids := make([]netip.Addr, count)
		ids[0] = netip.MustParseAddr("10.0.0.1")
		for i := 1; i < count; i++ {
			ids[i] = ids[i-1].Next()
			vn.Connect(ids[i-1], ids[i]).WithLatency(latency, latency/10).WithPacketLoss(loss)
		}

		result := make(chan error, 1)
		nodes := make([]*state.State, 0, count)
		defer func() {
			for _, s := range nodes {
				core.Stop(s)
			}
		}()
		for i, id := range ids {
			cfg := state.DefaultLocalCfg(id)
			cfg.AckRequired = ack
			var cb core.Callbacks
			if i == 0 {
				cb = core.CallbackFuncs{
					OnNewRoute: func(orig netip.Addr) {
						result <- nil
					},
					OnTimedOut: func() {
						result <- errors.New("route discovery timed out")
					},
				}
			}
			s, err := core.Init(cfg, level, vn.Transport(id), cb)
			if err != nil {
				return err
			}
			nodes = append(nodes, s)
			go func() {
				_ = core.Run(s)
			}()
		}

		src, dst := nodes[0], ids[count-1]
		start := time.Now()
		err := core.Discover(src, dst, timeout)
		if err != nil {
			return err
		}
		err = <-result
		if err != nil {
			return err
		}
		fmt.Printf("discovered %s from %s in %s\n", dst, ids[0], time.Since(start))
		for i, s := range nodes {
			fmt.Printf("%s:\n", ids[i])
			for _, rt := range core.Routes(s) {
				fmt.Printf(" - %s\n", rt)
			}
		}
		return nil
	},
	GroupID: "ld",
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().IntP("nodes", "c", 5, "number of nodes in the line")
	simCmd.Flags().Duration("latency", 10*time.Millisecond, "latency of each link")
	simCmd.Flags().Float64("loss", 0, "packet loss of each link, between 0 and 1")
	simCmd.Flags().Bool("ack", false, "require RREP-ACKs")
	simCmd.Flags().Duration("timeout", state.NetTraversalTime, "discovery timeout")
	simCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}
