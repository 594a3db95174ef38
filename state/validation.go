package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func AddrValidator(name string, addr interface {
	IsValid() bool
	IsUnspecified() bool
}) error {
	if !addr.IsValid() {
		return fmt.Errorf("%s is not a valid address", name)
	}
	if addr.IsUnspecified() {
		return fmt.Errorf("%s must not be the unspecified address", name)
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	err := AddrValidator("node.Id", node.Id)
	if err != nil {
		return err
	}
	if len(node.Neighbours) != 0 && !node.Listen.IsValid() {
		return fmt.Errorf("node.Listen is invalid")
	}
	seen := make(map[string]struct{})
	for _, n := range node.Neighbours {
		err = AddrValidator("neighbour addr", n.Addr)
		if err != nil {
			return err
		}
		if n.Addr == node.Id {
			return fmt.Errorf("neighbour %s is this node", n.Addr)
		}
		if !n.Endpoint.IsValid() {
			return fmt.Errorf("neighbour %s has an invalid endpoint", n.Addr)
		}
		if _, ok := seen[n.Addr.String()]; ok {
			return fmt.Errorf("duplicate neighbour: %s", n.Addr)
		}
		seen[n.Addr.String()] = struct{}{}
	}
	if node.MaxHopLimit == 0 || node.MaxHopCount == 0 {
		return fmt.Errorf("hop limits must be positive")
	}
	if node.RouteEntries <= 0 || node.BlacklistEntries <= 0 || node.PendingEntries <= 0 {
		return fmt.Errorf("table capacities must be positive")
	}
	if node.AgeInterval <= 0 || node.RouteTimeout <= 0 || node.BlacklistTime <= 0 ||
		node.RREPAckTimeout <= 0 || node.DiscoveryTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if node.RouteTimeout < node.AgeInterval {
		return fmt.Errorf("route_timeout (%s) is shorter than age_interval (%s)", node.RouteTimeout, node.AgeInterval)
	}
	if node.LogPath != "" {
		if err := PathValidator(node.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	if node.ControlSocket != "" {
		if err := PathValidator(node.ControlSocket); err != nil {
			return fmt.Errorf("control_socket: %w", err)
		}
	}
	return nil
}
