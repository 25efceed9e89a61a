// Package session implements the per-subnet DHCPv6 Prefix Delegation
// client state machine: SOLICIT, REQUEST, RENEW, RELEASE, and the
// lease-lifetime-driven renewal timer.
package session

import (
	"context"
	"crypto/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv6"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/agentlog"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/demux"
)

// Transport is the subset of the wire endpoint and demultiplexer a
// session needs. Grounded on the teacher's DHCPv6PDReceiver, which took
// its client (nclient6.Client) as a constructor argument rather than
// dialing one itself; here the equivalent seam is this interface so
// sessions can be tested against a fake.
type Transport interface {
	SendMulticast(frame []byte) error
	SendUnicast(frame []byte, server net.IP) error
	Register(msgType dhcpv6.MessageType, trid codec.TRID, window time.Duration) <-chan []demux.Frame
}

// Callbacks are invoked on session lifecycle events. Matches spec §4.4:
// OnBound fires exactly once per transition into BOUND from REQUESTING,
// never on RENEWING→BOUND.
type Callbacks struct {
	OnBound       func(subnetID string)
	OnStateChange func(subnetID string, from, to State)
}

// Retry policy and window constants (spec §5).
const (
	maxSolicitAttempts = 3
	maxRequestAttempts = 3
	preSendSleep       = 1 * time.Second
	advertiseWindow    = 5 * time.Second
	replyWindow        = 2 * time.Second
	releasePollWindow  = 10 * time.Second
)

// Session drives one subnet's PD lifecycle. One goroutine (run) owns
// all mutable fields except currentLease, which is read lock-free via
// an atomic pointer so that control-RPC "get" calls never block on the
// session's own goroutine (spec §5: "get may run concurrently with the
// session task but observes a point-in-time snapshot").
type Session struct {
	subnetID  string
	ownerPID  int
	transport Transport
	callbacks Callbacks

	mu    sync.Mutex
	state State

	serverDUID []byte
	serverAddr net.IP
	// pendingIAPrefixBlob is the IA-Prefix TLV chosen from the winning
	// ADVERTISE. It is set once by solicit and echoed verbatim on every
	// REQUEST/RENEW/RELEASE thereafter (spec §3); a REPLY's own IA-Prefix
	// is installed as the lease but never recaptured here.
	pendingIAPrefixBlob []byte

	currentLease atomic.Pointer[codec.IAPrefix]

	// originalReleaseFrame caches the exact bytes of the first RELEASE
	// sent so that retransmissions resend identical bytes rather than
	// re-encoding. See DESIGN.md's resolution of the source's undefined
	// lowercase `release(...)` resend call.
	originalReleaseFrame []byte

	cancel       context.CancelFunc
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New constructs a Session in state NEW. Start must be called to begin
// the SOLICIT/REQUEST flow.
func New(subnetID string, ownerPID int, transport Transport, callbacks Callbacks) *Session {
	return &Session{
		subnetID:  subnetID,
		ownerPID:  ownerPID,
		transport: transport,
		callbacks: callbacks,
		state:     StateNew,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SubnetID returns the session's subnet id.
func (s *Session) SubnetID() string { return s.subnetID }

// OwnerPID returns the orchestrator pid this session notifies.
func (s *Session) OwnerPID() int { return s.ownerPID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentPrefix renders the session's current lease, or the ::/64
// sentinel if none has been acquired yet (spec invariant 8).
func (s *Session) CurrentPrefix() string {
	return codec.RenderPrefix(s.currentLease.Load())
}

func (s *Session) setState(ctx context.Context, next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	if s.callbacks.OnStateChange != nil {
		s.callbacks.OnStateChange(s.subnetID, prev, next)
	}
	agentlog.FromContext(ctx).WithName("session").V(1).Info("state change",
		"subnet_id", s.subnetID, "from", prev, "to", next)
}

// Start begins the session's goroutine: SOLICIT, REQUEST, then BOUND
// with renewal, until Stop is called or the session fails terminally.
// The run-loop's internal context is cancelled the moment Stop is
// called, aborting any in-flight SOLICIT/REQUEST/RENEW wait immediately
// so RELEASING can begin without delay; RELEASING itself deliberately
// does not watch this cancellation (see release.go) since it must still
// attempt delivery after shutdown has begun.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		<-s.shutdown
		cancel()
	}()
	go s.run(runCtx)
}

// Stop initiates graceful shutdown: cancel the renew timer, run
// RELEASING to best effort, then terminate. Stop returns when the
// session goroutine has exited or ctx is done, whichever comes first;
// the session keeps running RELEASING in the background even if the
// caller stops waiting.
func (s *Session) Stop(ctx context.Context) {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	log := agentlog.FromContext(ctx).WithName("session").WithValues("subnet_id", s.subnetID)
	defer func() {
		if p := recover(); p != nil {
			log.Info("recovered panic in session goroutine", "panic", p)
			s.setState(ctx, StateTerminated)
		}
	}()

	s.setState(ctx, StateSoliciting)
	if !s.solicit(ctx, log) {
		s.setState(ctx, StateTerminated)
		return
	}

	s.setState(ctx, StateRequesting)
	lease, ok := s.request(ctx, log, codec.MessageTypeRequest, replyWindow, maxRequestAttempts)
	if !ok {
		s.setState(ctx, StateTerminated)
		return
	}
	s.installLease(lease)
	s.setState(ctx, StateBound)
	if s.callbacks.OnBound != nil {
		s.callbacks.OnBound(s.subnetID)
	}

	if exit := s.renewLoop(ctx, log); exit == renewExitShutdown {
		s.setState(ctx, StateReleasing)
		s.release(log)
	}
	// A fatal RENEW_FAILED goes straight to TERMINATED (spec §4.4:
	// RELEASING is reached "on shutdown" only) — no RELEASE is sent to
	// a server that just refused to renew.
	s.setState(ctx, StateTerminated)
}

func (s *Session) installLease(lease *codec.IAPrefix) {
	s.currentLease.Store(lease)
}

func randomTRID() codec.TRID {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return codec.TRID(b)
}
