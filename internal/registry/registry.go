// Package registry maps subnet ids to live PD sessions, serves the
// local control-socket RPC described in spec §4.5, and persists session
// identity across agent restarts.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/go-logr/logr"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/agentlog"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/control"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/session"
)

// subnetFilePrefix names the persisted per-subnet record file (spec §3,
// §6): "<conf_dir>/subnet_<subnet_id>" holding the decimal owner pid.
const subnetFilePrefix = "subnet_"

// Registry owns the subnet_id -> Session map and the control-socket RPC
// surface. One Registry exists per agent process.
type Registry struct {
	transport session.Transport
	confDir   string
	socketDir string

	mu       sync.Mutex
	sessions map[string]*session.Session
	conn     *net.UnixConn
}

// New constructs a Registry. transport is the shared wire/demux seam
// every session it creates will drive its state machine through.
func New(transport session.Transport, confDir, socketDir string) *Registry {
	return &Registry{
		transport: transport,
		confDir:   confDir,
		socketDir: socketDir,
		sessions:  make(map[string]*session.Session),
	}
}

// Recover scans confDir for persisted subnet_<id> records and replays
// each as an enable (spec §4.5 step 1). Unreadable files and a missing
// directory are logged and skipped, never fatal.
func (r *Registry) Recover(ctx context.Context) {
	log := agentlog.FromContext(ctx).WithName("registry")
	entries, err := os.ReadDir(r.confDir)
	if err != nil {
		log.Info("skipping startup recovery, cannot read conf dir", "dir", r.confDir, "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, subnetFilePrefix) {
			continue
		}
		subnetID := strings.TrimPrefix(name, subnetFilePrefix)
		raw, err := os.ReadFile(filepath.Join(r.confDir, name))
		if err != nil {
			log.Info("skipping unreadable subnet record", "subnet_id", subnetID, "error", err)
			continue
		}
		pid, err := parsePID(raw)
		if err != nil {
			log.Info("skipping subnet record with unparseable pid", "subnet_id", subnetID, "error", err)
			continue
		}
		r.Enable(ctx, subnetID, pid)
	}
}

func parsePID(raw []byte) (int, error) {
	field := strings.TrimSpace(strings.SplitN(string(raw), "\n", 2)[0])
	return strconv.Atoi(field)
}

// Enable starts a session for subnetID if none exists (persisting its
// record), or notifies the owning orchestrator immediately if one
// already does (spec §4.5: idempotent).
func (r *Registry) Enable(ctx context.Context, subnetID string, ownerPID int) {
	log := agentlog.FromContext(ctx).WithName("registry").WithValues("subnet_id", subnetID)

	r.mu.Lock()
	existing, ok := r.sessions[subnetID]
	if ok {
		r.mu.Unlock()
		log.V(1).Info("enable on already-running subnet, notifying immediately")
		notifyOwner(log, existing.OwnerPID())
		return
	}

	callbacks := session.Callbacks{
		OnBound: func(id string) {
			r.mu.Lock()
			s := r.sessions[id]
			r.mu.Unlock()
			if s != nil {
				notifyOwner(log, s.OwnerPID())
			}
		},
	}
	s := session.New(subnetID, ownerPID, r.transport, callbacks)

	r.sessions[subnetID] = s
	r.mu.Unlock()

	s.Start(ctx)

	if err := r.persist(subnetID, ownerPID); err != nil {
		log.Info("failed to persist subnet record", "error", err)
	}
}

// Disable initiates RELEASING for subnetID's session, removes it from
// the registry, and deletes its persisted record. A disable on an
// unknown subnet is logged and ignored (spec §4.5, invariant 6).
func (r *Registry) Disable(ctx context.Context, subnetID string) {
	log := agentlog.FromContext(ctx).WithName("registry").WithValues("subnet_id", subnetID)

	r.mu.Lock()
	s, ok := r.sessions[subnetID]
	if ok {
		delete(r.sessions, subnetID)
	}
	r.mu.Unlock()
	if !ok {
		log.V(1).Info("disable on unknown subnet, ignoring")
		return
	}

	s.Stop(ctx)
	if err := r.unpersist(subnetID); err != nil {
		log.Info("failed to remove subnet record", "error", err)
	}
}

// Get returns the current prefix string for subnetID, or
// control.NotRunning if no session exists (spec invariant 8).
func (r *Registry) Get(subnetID string) string {
	r.mu.Lock()
	s, ok := r.sessions[subnetID]
	r.mu.Unlock()
	if !ok {
		return control.NotRunning
	}
	return s.CurrentPrefix()
}

func (r *Registry) persist(subnetID string, ownerPID int) error {
	path := filepath.Join(r.confDir, subnetFilePrefix+subnetID)
	return os.WriteFile(path, []byte(strconv.Itoa(ownerPID)), 0o644)
}

func (r *Registry) unpersist(subnetID string) error {
	path := filepath.Join(r.confDir, subnetFilePrefix+subnetID)
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// notifyOwner sends SIGHUP to ownerPID (spec §4.5 orchestrator
// notification). Failures — typically a dead pid — are swallowed with a
// warning, never propagated.
func notifyOwner(log logr.Logger, ownerPID int) {
	if err := syscall.Kill(ownerPID, syscall.SIGHUP); err != nil {
		log.Info("failed to signal orchestrator", "owner_pid", ownerPID, "error", err)
	}
}

// ListenAndServe binds the control socket at
// <socket_dir>/<control.CONTROL_PATH>, removing any stale socket file
// first and chmod-ing it world-accessible (spec §4.5 steps 2-3), then
// runs the accept loop until the socket is closed by Shutdown. Each
// inbound datagram is dispatched to a fresh goroutine so a slow "get"
// cannot wedge enable/disable (spec §4.5).
func (r *Registry) ListenAndServe(ctx context.Context) error {
	path := filepath.Join(r.socketDir, control.CONTROL_PATH)
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return fmt.Errorf("registry: resolve control socket: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("registry: bind control socket: %w", err)
	}
	if err := os.Chmod(path, 0o777); err != nil {
		conn.Close()
		return fmt.Errorf("registry: chmod control socket: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	log := agentlog.FromContext(ctx).WithName("registry")
	var wg sync.WaitGroup
	defer wg.Wait()

	buf := make([]byte, control.MaxDatagramBytes)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.V(1).Info("control socket closed", "error", err)
			return nil
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					log.Info("recovered panic in control handler", "panic", p)
				}
			}()
			r.handle(ctx, log, raw)
		}()
	}
}

func (r *Registry) handle(ctx context.Context, log logr.Logger, raw []byte) {
	cmd, err := control.Parse(string(raw))
	if err != nil {
		log.Info("dropping malformed control datagram", "error", err)
		return
	}
	switch cmd.Verb {
	case "enable":
		pid, err := strconv.Atoi(cmd.Arg2)
		if err != nil {
			log.Info("dropping enable with unparseable pid", "raw_pid", cmd.Arg2)
			return
		}
		r.Enable(ctx, cmd.Arg1, pid)
	case "disable":
		r.Disable(ctx, cmd.Arg1)
	case "get":
		r.respondGet(log, cmd.Arg1, cmd.Arg2)
	default:
		log.Info("dropping control datagram with unknown verb", "verb", cmd.Verb)
	}
}

// respondGet looks up subnetID's prefix and sends it to the per-request
// response socket named by responseID. A responseID that would escape
// socketDir (path traversal) is rejected before dialing (spec §4.5
// addition: response-id validation).
func (r *Registry) respondGet(log logr.Logger, subnetID, responseID string) {
	if strings.ContainsAny(responseID, "/\\") || strings.Contains(responseID, "..") {
		log.Info("rejecting get with path-unsafe response id", "response_id", responseID)
		return
	}
	path := filepath.Join(r.socketDir, control.RESP_PATH(responseID))
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(r.socketDir)+string(os.PathSeparator)) {
		log.Info("rejecting get with response id escaping socket dir", "response_id", responseID)
		return
	}

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		log.Info("failed to resolve response socket", "error", err)
		return
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		log.Info("failed to dial response socket", "error", err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(r.Get(subnetID))); err != nil {
		log.Info("failed to send get response", "error", err)
	}
}

// Shutdown disables every live session concurrently and then closes the
// control socket, implementing §6's "mark not-running" behavior for
// SIGINT. Each disable waits until its session exits or ctx is done; a
// session's RELEASING may run up to releaseMaxPolls poll windows and
// continues in the background if ctx ends first.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	conn := r.conn
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Disable(ctx, id)
		}(id)
	}
	wg.Wait()

	if conn != nil {
		conn.Close()
	}
}
