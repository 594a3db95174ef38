package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/loadng/state"
)

const ipcDeadline = 5 * time.Second

// ControlServer answers inspection and discovery requests on a unix socket
type ControlServer struct {
	ln net.Listener
	wg sync.WaitGroup
}

func IPCGet(sock string, cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", sock, ipcDeadline)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcDeadline))
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(cmd + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}

func (c *ControlServer) Init(s *state.State) error {
	_ = os.Remove(s.ControlSocket)
	ln, err := net.Listen("unix", s.ControlSocket)
	if err != nil {
		return fmt.Errorf("failed to listen on control socket: %w", err)
	}
	c.ln = ln
	s.Log.Info("control socket listening", "path", s.ControlSocket)
	c.wg.Add(1)
	go c.acceptLoop(s)
	return nil
}

func (c *ControlServer) acceptLoop(s *state.State) {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.Log.Warn("control socket accept failed", "err", err)
			}
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(ipcDeadline))
			rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
			err := HandleIPCGet(s, rw)
			if err != nil {
				s.Log.Debug("control request failed", "err", err)
				_, _ = rw.WriteString(fmt.Sprintf("error: %s\n\x00", err))
			}
			_ = rw.Flush()
		}()
	}
}

func (c *ControlServer) Cleanup(s *state.State) error {
	err := c.ln.Close()
	c.wg.Wait()
	return err
}

func HandleIPCGet(s *state.State, rw *bufio.ReadWriter) error {
	cmd, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	switch {
	case cmd == "inspect\n":
		res, err := s.DispatchWait(func(s *state.State) (any, error) {
			return inspect(s), nil
		})
		if err != nil {
			return err
		}
		_, err = rw.WriteString(res.(string))
		return err
	case strings.HasPrefix(cmd, "discover "):
		dest, err := netip.ParseAddr(strings.TrimSpace(strings.TrimPrefix(cmd, "discover ")))
		if err != nil {
			return err
		}
		err = Discover(s, dest, 0)
		if err != nil {
			return err
		}
		_, err = rw.WriteString(fmt.Sprintf("discovering %s\n\x00", dest))
		return err
	default:
		return fmt.Errorf("unknown command %q", strings.TrimSpace(cmd))
	}
}

func inspect(s *state.State) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Node %s\n", s.Id))
	if s.DiscoveryPending {
		sb.WriteString(fmt.Sprintf("Discovering %s for %.2fs\n", s.DiscoveryTarget, time.Since(s.DiscoveryStarted).Seconds()))
	}

	sb.WriteString("\nRoute Set:\n")
	rt := make([]string, 0)
	for _, r := range s.Table.Routes() {
		rt = append(rt, fmt.Sprintf(" - %s", r))
	}
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	sb.WriteString("\nBlacklist:\n")
	rt = make([]string, 0)
	for _, b := range s.Table.Blacklist() {
		rt = append(rt, fmt.Sprintf(" - %s for %d ticks", b.Neighbour, b.ValidTime))
	}
	slices.Sort(rt)
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	sb.WriteString("\nPending Acks:\n")
	rt = make([]string, 0)
	for _, p := range s.Table.Pending() {
		rt = append(rt, fmt.Sprintf(" - %s/%d via %s for %d ticks", p.Originator, p.Seqno, p.NextHop, p.Timeout))
	}
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")
	sb.WriteRune(0)
	return sb.String()
}
