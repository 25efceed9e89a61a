package session

import (
	"github.com/go-logr/logr"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
)

// releaseMaxPolls bounds the number of 10-second poll cycles RELEASING
// will run before giving up. Spec §7 describes the source as retrying
// "indefinitely"; an unbounded retry would leak a session goroutine
// forever if the upstream server never replies during shutdown (the
// common real-world case: the server is already gone), so this agent
// bounds it while keeping the window generous. The session transitions
// to TERMINATED either way (spec §4.4: "Eventually transition to
// TERMINATED regardless of success").
const releaseMaxPolls = 6

// release drives RELEASING: build one RELEASE frame, cache its exact
// bytes, send it, and poll for a REPLY with a 10-second deadline per
// attempt; on an empty batch, resend the SAME cached bytes (not a
// freshly re-encoded frame) and poll again. This resolves the source's
// undefined lowercase `release(...)` resend call — see DESIGN.md.
func (s *Session) release(log logr.Logger) {
	trid := randomTRID()
	s.originalReleaseFrame = codec.EncodeRelease(trid, s.subnetID, s.serverDUID, s.pendingIAPrefixBlob)

	for attempt := 0; attempt < releaseMaxPolls; attempt++ {
		batchCh := s.transport.Register(codec.MessageTypeReply, trid, releasePollWindow)
		if err := s.transport.SendUnicast(s.originalReleaseFrame, s.serverAddr); err != nil {
			log.Info("RELEASE send failed, will retry", "trid", trid.Uint32(), "attempt", attempt, "error", err)
		}

		batch := <-batchCh
		if len(batch) > 0 {
			log.V(1).Info("RELEASE acknowledged", "trid", trid.Uint32(), "attempt", attempt)
			return
		}
		log.Info("RELEASE unacknowledged, resending cached frame", "trid", trid.Uint32(), "attempt", attempt)
	}
	log.Info("RELEASE exhausted poll attempts, terminating anyway", "trid", trid.Uint32())
}
