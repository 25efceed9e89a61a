package pdclient

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/control"
)

func listenControlSocket(t *testing.T, socketDir string) *net.UnixConn {
	t.Helper()
	addr, err := net.ResolveUnixAddr("unixgram", filepath.Join(socketDir, control.CONTROL_PATH))
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestEnableEmitsExactDatagram pins spec scenario S6: enable() with
// subnet_id="subnet", pid="12345" emits exactly "enable,subnet,12345,".
func TestEnableEmitsExactDatagram(t *testing.T) {
	socketDir := t.TempDir()
	server := listenControlSocket(t, socketDir)

	c := New("subnet", 12345, socketDir)
	if err := c.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("no datagram received: %v", err)
	}
	if got, want := string(buf[:n]), "enable,subnet,12345,"; got != want {
		t.Errorf("Enable datagram = %q, want %q", got, want)
	}
}

func TestDisableEmitsExactDatagram(t *testing.T) {
	socketDir := t.TempDir()
	server := listenControlSocket(t, socketDir)

	c := New("subnet", 12345, socketDir)
	if err := c.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("no datagram received: %v", err)
	}
	if got, want := string(buf[:n]), "disable,subnet,12345,"; got != want {
		t.Errorf("Disable datagram = %q, want %q", got, want)
	}
}

// TestGetPrefixRoundTrip pins spec scenario S6's get_prefix() shape
// (get,<subnet_id>,<response_id>,) and the happy-path response flow.
func TestGetPrefixRoundTrip(t *testing.T) {
	socketDir := t.TempDir()
	server := listenControlSocket(t, socketDir)

	c := New("subnet", 12345, socketDir)
	type result struct {
		prefix string
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		prefix, err := c.GetPrefix()
		resultCh <- result{prefix, err}
	}()

	server.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("no datagram received: %v", err)
	}
	cmd, err := control.Parse(string(buf[:n]))
	if err != nil {
		t.Fatalf("control.Parse: %v", err)
	}
	if cmd.Verb != "get" || cmd.Arg1 != "subnet" {
		t.Fatalf("command = %+v, want verb=get arg1=subnet", cmd)
	}

	respAddr, err := net.ResolveUnixAddr("unixgram", filepath.Join(socketDir, control.RESP_PATH(cmd.Arg2)))
	if err != nil {
		t.Fatal(err)
	}
	respConn, err := net.DialUnix("unixgram", nil, respAddr)
	if err != nil {
		t.Fatalf("failed to dial response socket: %v", err)
	}
	defer respConn.Close()
	if _, err := respConn.Write([]byte("2001:db8::/48")); err != nil {
		t.Fatal(err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("GetPrefix: %v", res.err)
	}
	if res.prefix != "2001:db8::/48" {
		t.Errorf("prefix = %q, want 2001:db8::/48", res.prefix)
	}
}

func TestGetPrefixNotRunning(t *testing.T) {
	socketDir := t.TempDir()
	server := listenControlSocket(t, socketDir)

	c := New("subnet", 12345, socketDir)
	resultCh := make(chan error, 1)
	go func() {
		_, err := c.GetPrefix()
		resultCh <- err
	}()

	server.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("no datagram received: %v", err)
	}
	cmd, err := control.Parse(string(buf[:n]))
	if err != nil {
		t.Fatalf("control.Parse: %v", err)
	}

	respAddr, err := net.ResolveUnixAddr("unixgram", filepath.Join(socketDir, control.RESP_PATH(cmd.Arg2)))
	if err != nil {
		t.Fatal(err)
	}
	respConn, err := net.DialUnix("unixgram", nil, respAddr)
	if err != nil {
		t.Fatalf("failed to dial response socket: %v", err)
	}
	defer respConn.Close()
	if _, err := respConn.Write([]byte(control.NotRunning)); err != nil {
		t.Fatal(err)
	}

	err = <-resultCh
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}

func TestGetPrefixTimesOutWhenAgentNeverResponds(t *testing.T) {
	socketDir := t.TempDir()
	listenControlSocket(t, socketDir) // bound but never read/responded to

	c := New("subnet", 12345, socketDir)
	start := time.Now()
	_, err := c.GetPrefix()
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("GetPrefix took %s, want bounded by the 3s receive timeout", elapsed)
	}
}
