// Package codec encodes and decodes the DHCPv6 Prefix Delegation messages
// this agent speaks: SOLICIT, REQUEST, RENEW, RELEASE outbound, and the
// server's ADVERTISE/REPLY inbound.
package codec

import "errors"

// ErrMalformed is returned when a frame or option buffer is too short,
// an option's declared length overruns the buffer, or a decoded field
// value is out of range (e.g. a prefix length over 128). A RESPONSE
// missing a mandatory option (Server Identifier, or an IA_PD carrying an
// IA Prefix) is not surfaced as a distinct error: callers that scan a
// gathered batch (session.pickBestAdvertise, session.request) simply
// skip a frame lacking what they need and move on to the next.
var ErrMalformed = errors.New("codec: malformed frame")
