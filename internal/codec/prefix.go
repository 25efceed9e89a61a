package codec

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IAPrefix is the decoded view of an IA Prefix (option 26) payload:
// preferred_lifetime (4) | valid_lifetime (4) | prefix_length (1) |
// prefix_bytes (up to 16).
//
// Prefix deliberately holds only prefix_length BYTES of address data,
// not a full 16-byte IPv6 address, because the upstream slicing bug this
// agent preserves treats prefix_length as a byte count rather than a bit
// count (spec Design Notes: "suspect, preserved for observable-behavior
// compatibility"). Rendering pads the remainder with zero bytes.
type IAPrefix struct {
	PreferredLifetime uint32
	ValidLifetime     uint32
	PrefixLength      uint8
	Prefix            []byte
}

// ParseIAPrefix decodes an IA Prefix option payload. It fails with
// ErrMalformed if the buffer is shorter than the fixed 9-byte header or
// if prefix_length exceeds 128 (spec §4.1).
func ParseIAPrefix(payload []byte) (*IAPrefix, error) {
	if len(payload) < 9 {
		return nil, ErrMalformed
	}
	prefixLength := payload[8]
	if prefixLength > 128 {
		return nil, ErrMalformed
	}
	// NOTE: prefix_length is used here as a byte count, not a bit count,
	// reproducing the source driver's slicing bug verbatim.
	end := 9 + int(prefixLength)
	if end > len(payload) {
		end = len(payload)
	}
	return &IAPrefix{
		PreferredLifetime: binary.BigEndian.Uint32(payload[0:4]),
		ValidLifetime:     binary.BigEndian.Uint32(payload[4:8]),
		PrefixLength:      prefixLength,
		Prefix:            payload[9:end],
	}, nil
}

// EncodeIAPrefix is the inverse of ParseIAPrefix, used by tests and by
// any future server-side tooling; the agent itself only ever parses IA
// Prefix options, never encodes them (the client echoes the server's
// blob verbatim instead of re-encoding it).
func EncodeIAPrefix(p IAPrefix) []byte {
	v := make([]byte, 9+len(p.Prefix))
	binary.BigEndian.PutUint32(v[0:4], p.PreferredLifetime)
	binary.BigEndian.PutUint32(v[4:8], p.ValidLifetime)
	v[8] = p.PrefixLength
	copy(v[9:], p.Prefix)
	return v
}

// NoLeasePrefix is the sentinel rendering for "no lease yet": ::/64.
const NoLeasePrefix = "::/64"

// RenderPrefix renders an IA Prefix's address bytes as
// "<prefix>/<prefix_length>", zero-padding the address portion to a full
// 16-byte IPv6 address for presentation.
func RenderPrefix(p *IAPrefix) string {
	if p == nil {
		return NoLeasePrefix
	}
	var addr [net.IPv6len]byte
	copy(addr[:], p.Prefix)
	return fmt.Sprintf("%s/%d", net.IP(addr[:]).String(), p.PrefixLength)
}

// ParsePreference decodes the single-byte Preference option (7); an
// absent option is treated as preference 0 by callers, not by this
// function (which only ever sees a present option's value).
func ParsePreference(value []byte) byte {
	if len(value) == 0 {
		return 0
	}
	return value[0]
}
