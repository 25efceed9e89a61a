package registry

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv6"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/agentlog"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/control"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/demux"
)

// inertTransport never delivers a non-empty batch, so every session it
// drives solicits until its retries exhaust and fails out. That is fine
// for these tests, which exercise registry bookkeeping (enable/disable/
// persistence/control-RPC), not the protocol exchange itself — that is
// internal/session's job.
type inertTransport struct{}

func (inertTransport) SendMulticast(frame []byte) error         { return nil }
func (inertTransport) SendUnicast(frame []byte, _ net.IP) error { return nil }
func (inertTransport) Register(_ dhcpv6.MessageType, _ codec.TRID, _ time.Duration) <-chan []demux.Frame {
	ch := make(chan []demux.Frame, 1)
	go func() {
		time.Sleep(time.Millisecond)
		ch <- nil
	}()
	return ch
}

func sessionCount(r *Registry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func TestRegistryEnableIsIdempotent(t *testing.T) {
	r := New(inertTransport{}, t.TempDir(), t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Enable(ctx, "subnet-a", 111)
	r.Enable(ctx, "subnet-a", 111)

	if n := sessionCount(r); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
}

func TestRegistryDisableIsIdempotent(t *testing.T) {
	r := New(inertTransport{}, t.TempDir(), t.TempDir())
	ctx := context.Background()
	r.Enable(ctx, "subnet-a", 111)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	r.Disable(stopCtx, "subnet-a")
	r.Disable(stopCtx, "subnet-a") // unknown now: logged and ignored, not an error

	if n := sessionCount(r); n != 0 {
		t.Fatalf("sessions = %d, want 0", n)
	}
}

func TestRegistryPersistenceTracksLiveSessions(t *testing.T) {
	confDir := t.TempDir()
	r := New(inertTransport{}, confDir, t.TempDir())
	ctx := context.Background()

	r.Enable(ctx, "subnet-a", 222)
	path := filepath.Join(confDir, "subnet_subnet-a")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected persisted record: %v", err)
	}
	if got, convErr := strconv.Atoi(string(raw)); convErr != nil || got != 222 {
		t.Errorf("persisted pid = %q, want 222", raw)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	r.Disable(stopCtx, "subnet-a")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected persisted record removed after disable, stat err = %v", err)
	}
}

func TestRegistryRecoverReadsPersistedSubnets(t *testing.T) {
	confDir := t.TempDir()
	mustWrite := func(name, content string) {
		if err := os.WriteFile(filepath.Join(confDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("subnet_subnet-a", "333")
	mustWrite("not-a-subnet-file", "ignored")
	mustWrite("subnet_subnet-b", "not-a-pid")

	r := New(inertTransport{}, confDir, t.TempDir())
	r.Recover(context.Background())

	r.mu.Lock()
	_, gotA := r.sessions["subnet-a"]
	_, gotB := r.sessions["subnet-b"]
	n := len(r.sessions)
	r.mu.Unlock()

	if !gotA {
		t.Error("expected subnet-a recovered from its persisted record")
	}
	if gotB {
		t.Error("subnet-b has an unparseable pid and should not be recovered")
	}
	if n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestRegistryGetUnknownSubnet(t *testing.T) {
	r := New(inertTransport{}, t.TempDir(), t.TempDir())
	if got := r.Get("nope"); got != control.NotRunning {
		t.Errorf("Get = %q, want %q", got, control.NotRunning)
	}
}

func TestRegistryRejectsPathTraversalResponseID(t *testing.T) {
	socketDir := t.TempDir()
	r := New(inertTransport{}, t.TempDir(), socketDir)
	log := agentlog.FromContext(context.Background()).WithName("test")

	r.respondGet(log, "subnet-a", "../../etc/passwd")

	if _, err := os.Stat(filepath.Join(socketDir, "..", "..", "etc", "passwd")); !os.IsNotExist(err) {
		t.Errorf("expected no file created outside socket dir")
	}
}

func TestRegistryControlSocketGetRoundTrip(t *testing.T) {
	socketDir := t.TempDir()
	r := New(inertTransport{}, t.TempDir(), socketDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond) // let the control socket bind

	respPath := filepath.Join(socketDir, control.RESP_PATH("req-1"))
	respAddr, err := net.ResolveUnixAddr("unixgram", respPath)
	if err != nil {
		t.Fatal(err)
	}
	respConn, err := net.ListenUnixgram("unixgram", respAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer respConn.Close()
	defer os.Remove(respPath)

	controlAddr, err := net.ResolveUnixAddr("unixgram", filepath.Join(socketDir, control.CONTROL_PATH))
	if err != nil {
		t.Fatal(err)
	}
	clientConn, err := net.DialUnix("unixgram", nil, controlAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte(control.Get("unknown-subnet", "req-1"))); err != nil {
		t.Fatal(err)
	}

	respConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1024)
	n, err := respConn.Read(buf)
	if err != nil {
		t.Fatalf("no response received: %v", err)
	}
	if got := string(buf[:n]); got != control.NotRunning {
		t.Errorf("get response = %q, want %q", got, control.NotRunning)
	}

	r.Shutdown(context.Background())
	cancel()
	wg.Wait()
}
