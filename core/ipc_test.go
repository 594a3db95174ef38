package core

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlSocket(t *testing.T) {
	vn := link.NewVirtualNetwork()
	defer vn.Close()
	vn.Connect(nodeA, nodeB)

	cfg := state.DefaultLocalCfg(nodeA)
	cfg.ControlSocket = filepath.Join(t.TempDir(), "ctl.sock")
	s, err := Init(cfg, slog.LevelError, vn.Transport(nodeA), nil)
	require.NoError(t, err)
	exited := make(chan error, 1)
	go func() {
		exited <- Run(s)
	}()
	defer func() {
		Stop(s)
		assert.NoError(t, <-exited)
	}()

	out, err := IPCGet(cfg.ControlSocket, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Node 10.0.0.1")
	assert.Contains(t, out, "Route Set:\n (none)")

	out, err = IPCGet(cfg.ControlSocket, "discover 10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, "discovering 10.0.0.3\n", out)

	out, err = IPCGet(cfg.ControlSocket, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Discovering 10.0.0.3")

	out, err = IPCGet(cfg.ControlSocket, "discover 10.0.0.4")
	require.NoError(t, err)
	assert.Contains(t, out, "error:")

	out, err = IPCGet(cfg.ControlSocket, "bogus")
	require.NoError(t, err)
	assert.Contains(t, out, "unknown command")
}
