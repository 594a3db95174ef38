//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/encodeous/loadng/state"
	"github.com/testcontainers/testcontainers-go"
	tcnetwork "github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ImageRepo   = "loadng-debug"
	ImageTag    = "latest"
	ImageName   = ImageRepo + ":" + ImageTag
	BuildTarget = "debug" // Dockerfile stage that runs loadng with router event logging
	WaitTimeout = 2 * time.Minute
)

type Harness struct {
	t          *testing.T
	mu         sync.Mutex
	ctx        context.Context
	Network    *testcontainers.DockerNetwork
	Nodes      map[string]testcontainers.Container
	LogManager *LogManager
	RootDir    string
	Subnet     string
	Gateway    string
}

// NewHarness creates a test harness with a unique subnet
func NewHarness(t *testing.T) *Harness {
	ctx := context.Background()
	rootDir, err := findRoot()
	if err != nil {
		t.Fatal(err)
	}

	subnet, gateway := GlobalNetworkAllocator.Allocate()
	t.Logf("Allocated subnet: %s, gateway: %s", subnet, gateway)

	newNetwork, err := tcnetwork.New(ctx,
		tcnetwork.WithAttachable(),
		tcnetwork.WithDriver("bridge"),
		tcnetwork.WithIPAM(&network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{
				{
					Subnet:  subnet,
					Gateway: gateway,
				},
			},
		}))
	if err != nil {
		t.Fatal(err)
	}
	h := &Harness{
		t:          t,
		ctx:        ctx,
		Network:    newNetwork,
		Nodes:      make(map[string]testcontainers.Container),
		LogManager: NewLogManager(),
		RootDir:    rootDir,
		Subnet:     subnet,
		Gateway:    gateway,
	}
	t.Cleanup(func() {
		if t.Failed() {
			for name := range h.Nodes {
				h.PrintLogs(name)
			}
		}
		h.Cleanup()
	})
	return h
}

// findRoot walks up from the working directory to the directory holding go.mod
func findRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rootDir := wd
	for {
		if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err == nil {
			return rootDir, nil
		}
		parent := filepath.Dir(rootDir)
		if parent == rootDir {
			return "", fmt.Errorf("could not find project root")
		}
		rootDir = parent
	}
}

type NodeSpec struct {
	Name           string
	IP             string
	NodeConfigPath string
}

func (h *Harness) StartNodes(specs ...NodeSpec) {
	var wg sync.WaitGroup
	wg.Add(len(specs))
	for _, spec := range specs {
		go func(s NodeSpec) {
			defer wg.Done()
			h.StartNode(s.Name, s.IP, s.NodeConfigPath)
		}(spec)
	}
	wg.Wait()
}

func (h *Harness) StartNode(name string, ip string, nodeConfigPath string) testcontainers.Container {
	h.t.Logf("Starting node %s at %s", name, ip)
	req := testcontainers.ContainerRequest{
		Image:    ImageName,
		Networks: []string{h.Network.Name},
		NetworkAliases: map[string][]string{
			h.Network.Name: {name},
		},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      nodeConfigPath,
				ContainerFilePath: state.NodeConfigPath,
				FileMode:          0644,
			},
		},
		Cmd:        nil, // entrypoint already runs the node verbosely
		WaitingFor: wait.ForLog("loadng has been initialized").WithStartupTimeout(30 * time.Second),
		EndpointSettingsModifier: func(m map[string]*network.EndpointSettings) {
			if ip != "" {
				if s, ok := m[h.Network.Name]; ok {
					s.IPAMConfig = &network.EndpointIPAMConfig{
						IPv4Address: ip,
					}
				}
			}
		},
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{
				&UnifiedLogConsumer{Node: name, Manager: h.LogManager},
			},
		},
		Name: h.t.Name() + "-" + name,
	}
	cont, err := testcontainers.GenericContainer(h.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		h.t.Fatalf("failed to start container %s: %v", name, err)
	}
	h.mu.Lock()
	h.Nodes[name] = cont
	h.mu.Unlock()
	return cont
}

// WaitForLog blocks until the node logs pattern. Node logs are written to stderr.
func (h *Harness) WaitForLog(nodeName string, pattern string) {
	h.waitFor(nodeName, SourceStderr, pattern)
}

func (h *Harness) waitFor(nodeName string, source LogSource, pattern string) {
	sub := h.LogManager.Subscribe(nodeName, source, pattern)
	defer h.LogManager.Unsubscribe(sub)

	select {
	case <-sub.MatchCh:
		return
	case <-time.After(WaitTimeout):
		h.t.Fatalf("timed out waiting for %s pattern %q in node %s", source, pattern, nodeName)
	case <-h.ctx.Done():
		h.t.Fatal("context canceled")
	}
}

func (h *Harness) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, c := range h.Nodes {
		if err := c.Terminate(h.ctx); err != nil {
			h.t.Logf("failed to terminate container %s: %v", name, err)
		}
	}
	if err := h.Network.Remove(context.Background()); err != nil {
		h.t.Logf("failed to remove network: %v", err)
	}
}

func (h *Harness) Exec(nodeName string, cmd []string) (string, string, error) {
	h.mu.Lock()
	container, ok := h.Nodes[nodeName]
	h.mu.Unlock()

	if !ok {
		return "", "", fmt.Errorf("node %s not found", nodeName)
	}

	code, r, err := container.Exec(h.ctx, cmd)
	if err != nil {
		return "", "", err
	}

	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)

	_, err = stdcopy.StdCopy(stdoutBuf, stderrBuf, r)
	if err != nil {
		return "", "", fmt.Errorf("failed to copy output: %w", err)
	}

	stdout := StripAnsi(stdoutBuf.String())
	stderr := StripAnsi(stderrBuf.String())

	if code != 0 {
		return stdout, stderr, fmt.Errorf("command exited with code %d: %s\nStderr: %s", code, stdout, stderr)
	}

	return stdout, stderr, nil
}

// Inspect returns the output of loadng inspect on the node
func (h *Harness) Inspect(nodeName string) string {
	stdout, _, err := h.Exec(nodeName, []string{"loadng", "inspect"})
	if err != nil {
		h.t.Fatalf("inspect on %s failed: %v", nodeName, err)
	}
	return stdout
}

// Discover asks the node to discover dest through its control socket
func (h *Harness) Discover(nodeName string, dest string) string {
	stdout, _, err := h.Exec(nodeName, []string{"loadng", "discover", dest})
	if err != nil {
		h.t.Fatalf("discover on %s failed: %v", nodeName, err)
	}
	return stdout
}

func (h *Harness) PrintLogs(nodeName string) {
	h.mu.Lock()
	container, ok := h.Nodes[nodeName]
	h.mu.Unlock()
	if !ok {
		h.t.Logf("node %s not found for logging", nodeName)
		return
	}
	r, err := container.Logs(h.ctx)
	if err != nil {
		h.t.Logf("failed to get logs for %s: %v", nodeName, err)
		return
	}
	buf := new(bytes.Buffer)
	io.Copy(buf, r)
	h.t.Logf("Logs for %s:\n%s", nodeName, buf.String())
}

// SetupTestDir creates a directory for the current test run
func (h *Harness) SetupTestDir() string {
	dir := filepath.Join(h.RootDir, "e2e", "runs", h.t.Name())
	os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatal(err)
	}
	return dir
}

// WriteConfig writes cfg to dir/filename and returns its path
func (h *Harness) WriteConfig(dir, filename string, cfg state.LocalCfg) string {
	path := filepath.Join(dir, filename)
	if err := state.WriteNodeConfig(path, cfg); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// SimpleLocal creates a node config listening on the default port with a control socket
func SimpleLocal(id string) state.LocalCfg {
	cfg := state.DefaultLocalCfg(netip.MustParseAddr(id))
	cfg.ControlSocket = "/run/loadng.sock"
	return cfg
}

// Link makes a and b neighbours of each other, reachable at their docker addresses
func Link(a *state.LocalCfg, aIP string, b *state.LocalCfg, bIP string) {
	a.Neighbours = append(a.Neighbours, state.NeighbourCfg{
		Addr:     b.Id,
		Endpoint: netip.AddrPortFrom(netip.MustParseAddr(bIP), uint16(state.DefaultPort)),
	})
	b.Neighbours = append(b.Neighbours, state.NeighbourCfg{
		Addr:     a.Id,
		Endpoint: netip.AddrPortFrom(netip.MustParseAddr(aIP), uint16(state.DefaultPort)),
	})
}
