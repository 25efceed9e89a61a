package codec

import (
	"encoding/binary"

	"github.com/insomniacslk/dhcp/dhcpv6"
)

// Option codes used by this agent, named after RFC 8415 and typed via the
// domain library so log lines and switches read as dhcpv6.OptionClientID
// rather than bare integers. Only the nine option codes the wire protocol
// names in spec §6 are ever produced or consumed here.
const (
	OptionClientID                = dhcpv6.OptionClientID
	OptionServerID                = dhcpv6.OptionServerID
	OptionORO                     = dhcpv6.OptionORO
	OptionPreference              = dhcpv6.OptionPreference
	OptionElapsedTime             = dhcpv6.OptionElapsedTime
	OptionIAPD                    = dhcpv6.OptionIAPD
	OptionIAPrefix                = dhcpv6.OptionIAPrefix
	OptionDNSRecursiveNameServers = dhcpv6.OptionDNSRecursiveNameServer
	OptionDomainSearchList        = dhcpv6.OptionDomainSearchList
)

// Message types this agent sends and receives, again named through the
// domain library rather than as bare bytes.
const (
	MessageTypeSolicit   = dhcpv6.MessageTypeSolicit
	MessageTypeAdvertise = dhcpv6.MessageTypeAdvertise
	MessageTypeRequest   = dhcpv6.MessageTypeRequest
	MessageTypeRenew     = dhcpv6.MessageTypeRenew
	MessageTypeReply     = dhcpv6.MessageTypeReply
	MessageTypeRelease   = dhcpv6.MessageTypeRelease
)

// Option is a single outbound DHCPv6 option. Every concrete type here
// encodes itself with a 2-byte code, a 2-byte length, and its value —
// callers never hand-assemble the TLV header.
type Option interface {
	code() dhcpv6.OptionCode
	value() []byte
}

func encodeOption(o Option) []byte {
	v := o.value()
	buf := make([]byte, 4+len(v))
	binary.BigEndian.PutUint16(buf[0:2], uint16(o.code()))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(v)))
	copy(buf[4:], v)
	return buf
}

func encodeOptions(opts ...Option) []byte {
	var out []byte
	for _, o := range opts {
		out = append(out, encodeOption(o)...)
	}
	return out
}

// ClientIdentifier is the DUID-EN Client Identifier (option 1). See
// duid.go for the deliberate abuse of the enterprise-id field: it carries
// the subnet id verbatim rather than a MAC-derived identifier.
type ClientIdentifier struct {
	duid []byte
}

func (ClientIdentifier) code() dhcpv6.OptionCode { return OptionClientID }
func (c ClientIdentifier) value() []byte         { return c.duid }

// ServerIdentifier echoes back the server_duid bytes received in an
// ADVERTISE's Server Identifier option (option 2).
type ServerIdentifier struct {
	DUID []byte
}

func (ServerIdentifier) code() dhcpv6.OptionCode { return OptionServerID }
func (s ServerIdentifier) value() []byte         { return s.DUID }

// OptionRequest (option 6) always lists DNS recursive name servers (23)
// and domain search list (24); this agent never varies the requested
// code set.
type OptionRequest struct{}

func (OptionRequest) code() dhcpv6.OptionCode { return OptionORO }
func (OptionRequest) value() []byte {
	v := make([]byte, 4)
	binary.BigEndian.PutUint16(v[0:2], uint16(OptionDNSRecursiveNameServers))
	binary.BigEndian.PutUint16(v[2:4], uint16(OptionDomainSearchList))
	return v
}

// ElapsedTime (option 8) is always encoded as 0: this client does not
// track per-transaction elapsed time. See spec Design Notes — kept as-is
// even though RFC guidance expects elapsed time to accumulate on retry.
type ElapsedTime struct{}

func (ElapsedTime) code() dhcpv6.OptionCode { return OptionElapsedTime }
func (ElapsedTime) value() []byte           { return []byte{0x00, 0x00} }

// RawIAPD is the IA_PD option (25) as sent by the client: an IAID, fixed
// T1/T2 timers, and the verbatim sub-option bytes echoed from the server
// on REQUEST/RENEW/RELEASE (nil on SOLICIT).
type RawIAPD struct {
	// IAID is normally 4 bytes but is preserved exactly as derived from
	// the subnet id (see iaidFromSubnetID): a subnet id that strips down
	// to fewer than 4 bytes yields a correspondingly short IAID and a
	// correspondingly short IA_PD option, matching the source driver's
	// slice semantics rather than zero-padding.
	IAID       []byte
	T1, T2     uint32
	SubOptions []byte
}

// DefaultT1 and DefaultT2 are the fixed renewal/rebinding timers this
// agent always requests. Renewal is not scheduled from T1/T2 at all:
// internal/session arms its renew timer from the delegated IA Prefix's
// preferred lifetime.
const (
	DefaultT1 = 3600
	DefaultT2 = 5400
)

func (RawIAPD) code() dhcpv6.OptionCode { return OptionIAPD }
func (o RawIAPD) value() []byte {
	n := len(o.IAID)
	v := make([]byte, n+8+len(o.SubOptions))
	copy(v[0:n], o.IAID)
	binary.BigEndian.PutUint32(v[n:n+4], o.T1)
	binary.BigEndian.PutUint32(v[n+4:n+8], o.T2)
	copy(v[n+8:], o.SubOptions)
	return v
}
