// Package pdclient is the thin in-orchestrator adapter that speaks the
// agent's control-socket RPC (spec §4.6): enable, disable, and
// get_prefix.
package pdclient

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/control"
)

// ErrNotRunning is returned by GetPrefix when the agent has no live
// session for the requested subnet (spec §7: NOT_RUNNING -> PD_NOT_RUNNING).
var ErrNotRunning = errors.New("pdclient: PD_NOT_RUNNING")

// getPrefixTimeout bounds the response-socket receive (spec §5).
const getPrefixTimeout = 3 * time.Second

// Client is the orchestrator-side stub for one subnet's PD session.
type Client struct {
	subnetID  string
	ownerPID  int
	socketDir string
}

// New constructs a Client for subnetID, notifying ownerPID (typically
// os.Getpid() of the calling orchestrator process) on lease-ready.
func New(subnetID string, ownerPID int, socketDir string) *Client {
	return &Client{subnetID: subnetID, ownerPID: ownerPID, socketDir: socketDir}
}

func (c *Client) send(command string) error {
	addr, err := net.ResolveUnixAddr("unixgram", filepath.Join(c.socketDir, control.CONTROL_PATH))
	if err != nil {
		return fmt.Errorf("pdclient: resolve control socket: %w", err)
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return fmt.Errorf("pdclient: dial control socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(command)); err != nil {
		return fmt.Errorf("pdclient: write control socket: %w", err)
	}
	return nil
}

// Enable asks the agent to start (or re-notify) a PD session for this
// subnet. Fire-and-forget (spec §4.6): the stub has no way to observe
// delivery.
func (c *Client) Enable() error {
	return c.send(control.Enable(c.subnetID, strconv.Itoa(c.ownerPID)))
}

// Disable asks the agent to release and tear down this subnet's
// session. Fire-and-forget, as Enable.
func (c *Client) Disable() error {
	return c.send(control.Disable(c.subnetID, strconv.Itoa(c.ownerPID)))
}

// GetPrefix blocks for up to 3 seconds for the agent's current prefix
// for this subnet. Returns ErrNotRunning if the agent has no live
// session for it.
func (c *Client) GetPrefix() (string, error) {
	responseID := uuid.NewString()
	respPath := filepath.Join(c.socketDir, control.RESP_PATH(responseID))

	respAddr, err := net.ResolveUnixAddr("unixgram", respPath)
	if err != nil {
		return "", fmt.Errorf("pdclient: resolve response socket: %w", err)
	}
	respConn, err := net.ListenUnixgram("unixgram", respAddr)
	if err != nil {
		return "", fmt.Errorf("pdclient: bind response socket: %w", err)
	}
	defer func() {
		respConn.Close()
		os.Remove(respPath)
	}()

	if err := c.send(control.Get(c.subnetID, responseID)); err != nil {
		return "", fmt.Errorf("pdclient: send get: %w", err)
	}

	if err := respConn.SetReadDeadline(time.Now().Add(getPrefixTimeout)); err != nil {
		return "", fmt.Errorf("pdclient: set read deadline: %w", err)
	}
	buf := make([]byte, control.MaxDatagramBytes)
	n, err := respConn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("pdclient: read response: %w", err)
	}

	prefix := string(buf[:n])
	if prefix == control.NotRunning {
		return "", ErrNotRunning
	}
	return prefix, nil
}
