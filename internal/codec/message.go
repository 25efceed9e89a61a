package codec

import (
	"encoding/binary"

	"github.com/insomniacslk/dhcp/dhcpv6"
)

// TRID is a 24-bit DHCPv6 transaction id. Only the low 3 bytes are ever
// placed on the wire; the top byte is always zero.
type TRID [3]byte

// NewTRID packs a random 24-bit value into wire form.
func NewTRID(v uint32) TRID {
	var t TRID
	t[0] = byte(v >> 16)
	t[1] = byte(v >> 8)
	t[2] = byte(v)
	return t
}

// Uint32 unpacks the transaction id for logging (retry/resend log lines
// in internal/session key on it alongside the attempt number).
func (t TRID) Uint32() uint32 {
	return uint32(t[0])<<16 | uint32(t[1])<<8 | uint32(t[2])
}

func buildFrame(msgType dhcpv6.MessageType, trid TRID, opts ...Option) []byte {
	frame := make([]byte, 4, 4+64)
	frame[0] = byte(msgType)
	copy(frame[1:4], trid[:])
	frame = append(frame, encodeOptions(opts...)...)
	return frame
}

// EncodeSolicit builds a SOLICIT frame: Client Identifier, Option
// Request, Elapsed Time, and an IA_PD with no sub-options (length 12,
// assuming a subnet id that strips to at least 4 bytes).
func EncodeSolicit(trid TRID, subnetID string) []byte {
	return buildFrame(MessageTypeSolicit, trid,
		BuildClientIdentifier(subnetID),
		OptionRequest{},
		ElapsedTime{},
		RawIAPD{IAID: iaidFromSubnetID(subnetID), T1: DefaultT1, T2: DefaultT2},
	)
}

// EncodeRequest builds a REQUEST frame: Client Identifier, Option
// Request, the chosen Server Identifier, and an IA_PD whose sub-options
// are the IA Prefix blob returned by that server in its ADVERTISE.
func EncodeRequest(trid TRID, subnetID string, serverDUID, iaPrefixBlob []byte) []byte {
	return buildFrame(MessageTypeRequest, trid,
		BuildClientIdentifier(subnetID),
		OptionRequest{},
		ServerIdentifier{DUID: serverDUID},
		RawIAPD{IAID: iaidFromSubnetID(subnetID), T1: DefaultT1, T2: DefaultT2, SubOptions: iaPrefixBlob},
	)
}

// EncodeRenew builds a RENEW frame: identical layout to REQUEST, with
// msg_type 5.
func EncodeRenew(trid TRID, subnetID string, serverDUID, iaPrefixBlob []byte) []byte {
	return buildFrame(MessageTypeRenew, trid,
		BuildClientIdentifier(subnetID),
		OptionRequest{},
		ServerIdentifier{DUID: serverDUID},
		RawIAPD{IAID: iaidFromSubnetID(subnetID), T1: DefaultT1, T2: DefaultT2, SubOptions: iaPrefixBlob},
	)
}

// EncodeRelease builds a RELEASE frame: as REQUEST/RENEW, msg_type 8,
// plus an Elapsed Time option.
func EncodeRelease(trid TRID, subnetID string, serverDUID, iaPrefixBlob []byte) []byte {
	return buildFrame(MessageTypeRelease, trid,
		BuildClientIdentifier(subnetID),
		OptionRequest{},
		ServerIdentifier{DUID: serverDUID},
		ElapsedTime{},
		RawIAPD{IAID: iaidFromSubnetID(subnetID), T1: DefaultT1, T2: DefaultT2, SubOptions: iaPrefixBlob},
	)
}

// ParseOptions walks TLVs in buf starting at startOffset until the end
// of the buffer, returning a multimap from option code to every value
// seen for that code, in arrival order. startOffset is 4 for the outer
// message (after msg_type+trid) and 12 for an IA_PD payload (after
// IAID+T1+T2).
func ParseOptions(buf []byte, startOffset int) (map[dhcpv6.OptionCode][][]byte, error) {
	out := make(map[dhcpv6.OptionCode][][]byte)
	off := startOffset
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, ErrMalformed
		}
		code := dhcpv6.OptionCode(binary.BigEndian.Uint16(buf[off : off+2]))
		length := int(binary.BigEndian.Uint16(buf[off+2 : off+4]))
		off += 4
		if off+length > len(buf) {
			return nil, ErrMalformed
		}
		value := buf[off : off+length]
		out[code] = append(out[code], value)
		off += length
	}
	return out, nil
}

// ParsedMessage is an inbound ADVERTISE or REPLY: the fixed header plus
// the multimap of its top-level options.
type ParsedMessage struct {
	Type    dhcpv6.MessageType
	TRID    TRID
	Options map[dhcpv6.OptionCode][][]byte
}

// ParseMessage decodes a received frame's header and top-level options.
// It does not validate which options are mandatory for the message
// type — callers (the session engine) check for the options they need
// and silently skip a frame that lacks them.
func ParseMessage(frame []byte) (*ParsedMessage, error) {
	if len(frame) < 4 {
		return nil, ErrMalformed
	}
	opts, err := ParseOptions(frame, 4)
	if err != nil {
		return nil, err
	}
	return &ParsedMessage{
		Type:    dhcpv6.MessageType(frame[0]),
		TRID:    TRID{frame[1], frame[2], frame[3]},
		Options: opts,
	}, nil
}
