package session

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
)

// renewExit reports why renewLoop returned, so run() can tell a fatal
// RENEW failure apart from an external shutdown: spec §4.4 sends a
// session to RELEASING only "on shutdown"; a RENEW_FAILED goes directly
// to TERMINATED, exactly as the source driver's renew_prefix raises and
// dies without ever calling release().
type renewExit int

const (
	renewExitShutdown renewExit = iota
	renewExitFailed
)

// renewLoop arms a one-shot timer for the current lease's preferred
// lifetime, then on each fire performs a single-attempt RENEW (spec
// §4.4: "Single attempt (no retry); on empty batch raise a fatal
// RENEW_FAILED"). Returns when ctx is cancelled (external shutdown) or
// a RENEW attempt fails.
func (s *Session) renewLoop(ctx context.Context, log logr.Logger) renewExit {
	for {
		lease := s.currentLease.Load()
		wait := time.Duration(lease.PreferredLifetime) * time.Second

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return renewExitShutdown
		case <-timer.C:
		}

		s.setState(ctx, StateRenewing)
		newLease, ok := s.request(ctx, log, codec.MessageTypeRenew, replyWindow, 1)
		if !ok {
			if ctx.Err() != nil {
				// The RENEW attempt was interrupted by shutdown, not
				// refused or timed out by the server.
				return renewExitShutdown
			}
			log.Info("RENEW failed, terminating session")
			return renewExitFailed
		}
		s.installLease(newLease)
		// RENEWING -> BOUND does not re-notify the orchestrator (spec
		// §4.4): OnBound is only invoked on the REQUESTING -> BOUND
		// transition in run().
		s.setState(ctx, StateBound)
	}
}
