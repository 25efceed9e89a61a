package session

import (
	"context"
	"net"
	"time"

	"github.com/go-logr/logr"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/codec"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/demux"
)

// solicit drives the SOLICITING state: up to maxSolicitAttempts rounds
// of (sleep, send SOLICIT, gather ADVERTISEs for advertiseWindow),
// picking the ADVERTISE with the greatest Preference value (spec
// invariant 5, §4.4). Returns false if no usable ADVERTISE was ever
// received.
func (s *Session) solicit(ctx context.Context, log logr.Logger) bool {
	for attempt := 0; attempt < maxSolicitAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(preSendSleep):
		}

		trid := randomTRID()
		batchCh := s.transport.Register(codec.MessageTypeAdvertise, trid, advertiseWindow)
		frame := codec.EncodeSolicit(trid, s.subnetID)
		if err := s.transport.SendMulticast(frame); err != nil {
			log.Info("SOLICIT send failed, retrying", "trid", trid.Uint32(), "attempt", attempt, "error", err)
			<-batchCh
			continue
		}

		batch := <-batchCh
		if best, ok := pickBestAdvertise(batch); ok {
			s.serverDUID = best.serverDUID
			s.serverAddr = best.serverAddr
			s.pendingIAPrefixBlob = best.iaPrefixBlob
			return true
		}
	}
	return false
}

type advertiseCandidate struct {
	preference   byte
	serverDUID   []byte
	serverAddr   net.IP
	iaPrefixBlob []byte
}

// pickBestAdvertise selects the ADVERTISE with the highest Preference
// option (7) value; absent Preference is treated as 0; ties keep the
// first-seen candidate (spec invariant 5).
func pickBestAdvertise(batch []demux.Frame) (advertiseCandidate, bool) {
	var best advertiseCandidate
	have := false
	highest := -1

	for _, f := range batch {
		msg, err := codec.ParseMessage(f.Bytes)
		if err != nil {
			continue
		}
		serverIDs := msg.Options[codec.OptionServerID]
		iapds := msg.Options[codec.OptionIAPD]
		if len(serverIDs) == 0 || len(iapds) == 0 {
			continue
		}
		blob, ok := iaPrefixBlobFromIAPD(iapds[0])
		if !ok {
			continue
		}

		pref := 0
		if prefs := msg.Options[codec.OptionPreference]; len(prefs) > 0 {
			pref = int(codec.ParsePreference(prefs[0]))
		}
		if pref <= highest {
			continue
		}
		highest = pref
		best = advertiseCandidate{
			preference:   byte(pref),
			serverDUID:   append([]byte(nil), serverIDs[0]...),
			serverAddr:   net.ParseIP(f.Sender),
			iaPrefixBlob: blob,
		}
		have = true
	}
	return best, have
}

// iaPrefixBlobFromIAPD extracts the first IA Prefix (option 26)
// sub-option TLV from an IA_PD payload, returned as the raw TLV bytes
// (code+length+value) so it can be echoed verbatim in REQUEST/RENEW.
func iaPrefixBlobFromIAPD(iapdPayload []byte) ([]byte, bool) {
	if len(iapdPayload) < 12 {
		return nil, false
	}
	subopts, err := codec.ParseOptions(iapdPayload, 12)
	if err != nil {
		return nil, false
	}
	values := subopts[codec.OptionIAPrefix]
	if len(values) == 0 {
		return nil, false
	}
	v := values[0]
	blob := make([]byte, 4+len(v))
	blob[0] = byte(codec.OptionIAPrefix >> 8)
	blob[1] = byte(codec.OptionIAPrefix)
	blob[2] = byte(len(v) >> 8)
	blob[3] = byte(len(v))
	copy(blob[4:], v)
	return blob, true
}
