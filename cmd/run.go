package cmd

import (
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/encodeous/loadng/core"
	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run loadng",
	Long:  `This will run loadng on the current host, exchanging route messages with the configured neighbours over UDP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeCfg, err := state.ReadNodeConfig(state.NodeConfigPath)
		if err != nil {
			return err
		}
		if logPath, _ := cmd.Flags().GetString("log"); logPath != "" {
			nodeCfg.LogPath = logPath
		}
		err = state.NodeConfigValidator(nodeCfg)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		if state.DBG_debug {
			go func() {
				slog.Warn("debug server stopped", "err", http.ListenAndServe("127.0.0.1:6060", nil))
			}()
		}

		tr := link.NewUDPTransport(nodeCfg.Id, nodeCfg.Listen, nodeCfg.NeighbourMap(), state.FloodDedupTTL, slog.Default())
		cb := core.CallbackFuncs{
			OnNewRoute: func(orig netip.Addr) {
				slog.Info("route discovered", "dest", orig)
			},
			OnTimedOut: func() {
				slog.Warn("route discovery timed out")
			},
		}
		s, err := core.Init(*nodeCfg, level, tr, cb)
		if err != nil {
			return err
		}
		s.Log.Info("loadng has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			select {
			case <-c:
				s.Cancel(errors.New("received shutdown signal"))
			case <-s.Context.Done():
			}
		}()

		dests, _ := cmd.Flags().GetStringSlice("discover")
		if len(dests) != 0 {
			go discoverAll(s, dests)
		}
		return core.Run(s)
	},
	GroupID: "ld",
}

// discoverAll discovers each destination in turn, waiting for the previous discovery to finish
func discoverAll(s *state.State, dests []string) {
	for _, d := range dests {
		dest, err := netip.ParseAddr(d)
		if err != nil {
			s.Log.Error("invalid destination", "dest", d, "err", err)
			continue
		}
		for {
			err = core.Discover(s, dest, 0)
			if !errors.Is(err, core.ErrBusy) {
				break
			}
			select {
			case <-s.Context.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		if err != nil {
			s.Log.Error("failed to start discovery", "dest", dest, "err", err)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().StringSliceP("discover", "d", nil, "Discover routes to these nodes once started")
	runCmd.Flags().BoolVarP(&state.DBG_log_route, "lroute", "r", false, "Write router events to console")
	runCmd.Flags().BoolVar(&state.DBG_debug, "debug", false, "Serve pprof and metrics on 127.0.0.1:6060")
}
