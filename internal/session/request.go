package session

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv6"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/demux"
)

// request drives REQUESTING (and, with maxAttempts=1, the single-shot
// RENEW exchange): send a REQUEST/RENEW-shaped frame carrying the
// IA-Prefix blob captured from the server's ADVERTISE, gather REPLYs
// for window, extract the IA_PD's IA Prefix and install it as the
// candidate lease. The IA-Prefix blob echoed on the wire is never
// re-captured from a REPLY (spec §3: the session "replays the first
// such blob verbatim" — the source driver's self.ias is set only in
// _solicit() and never updated by process_REPLY).
func (s *Session) request(ctx context.Context, log logr.Logger, msgType dhcpv6.MessageType, window time.Duration, maxAttempts int) (*codec.IAPrefix, bool) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(preSendSleep):
		}

		trid := randomTRID()
		batchCh := s.transport.Register(codec.MessageTypeReply, trid, window)

		var frame []byte
		switch msgType {
		case codec.MessageTypeRenew:
			frame = codec.EncodeRenew(trid, s.subnetID, s.serverDUID, s.pendingIAPrefixBlob)
		default:
			frame = codec.EncodeRequest(trid, s.subnetID, s.serverDUID, s.pendingIAPrefixBlob)
		}

		sendErr := s.transport.SendUnicast(frame, s.serverAddr)
		if sendErr != nil {
			log.Info("send failed, retrying", "msg_type", msgType, "trid", trid.Uint32(), "attempt", attempt, "error", sendErr)
			<-batchCh
			continue
		}

		batch := <-batchCh
		if lease, ok := extractLeaseFromReplies(batch); ok {
			return lease, true
		}
	}
	return nil, false
}

// extractLeaseFromReplies scans a REPLY batch for the first well-formed
// IA_PD/IA-Prefix pair (spec §4.4: "extract IA_PD, then within it
// extract IA-Prefix, and install it as the current lease").
func extractLeaseFromReplies(batch []demux.Frame) (*codec.IAPrefix, bool) {
	for _, f := range batch {
		msg, err := codec.ParseMessage(f.Bytes)
		if err != nil {
			continue
		}
		iapds := msg.Options[codec.OptionIAPD]
		if len(iapds) == 0 {
			continue
		}
		subopts, err := codec.ParseOptions(iapds[0], 12)
		if err != nil {
			continue
		}
		iaPrefixes := subopts[codec.OptionIAPrefix]
		if len(iaPrefixes) == 0 {
			continue
		}
		prefix, err := codec.ParseIAPrefix(iaPrefixes[0])
		if err != nil {
			continue
		}
		return prefix, true
	}
	return nil, false
}
