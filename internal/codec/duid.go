package codec

import "encoding/binary"

// enterpriseNumber is the IANA Private Enterprise Number this agent
// stamps into every DUID-EN Client Identifier. It does not identify an
// actual registered enterprise; it is a fixed tag the upstream servers
// use to recognise frames from this agent.
const enterpriseNumber = 8888

// BuildClientIdentifier constructs the DUID-EN (type 2) Client Identifier
// this agent uses in every outbound message. Unlike a conventional
// DUID-EN, the enterprise-id field carries the subnet id directly rather
// than a MAC-derived identifier: this lets the upstream server correlate
// leases to tenant subnets without a separate out-of-band mapping. See
// spec §4.1 and the design notes on deliberate DUID-EN abuse.
//
// Layout: duid_type (2 bytes) = 2 | enterprise_number (4 bytes) = 8888 |
// enterprise_id (variable) = subnetID.
func BuildClientIdentifier(subnetID string) ClientIdentifier {
	duid := make([]byte, 6+len(subnetID))
	binary.BigEndian.PutUint16(duid[0:2], 2)
	binary.BigEndian.PutUint32(duid[2:6], enterpriseNumber)
	copy(duid[6:], subnetID)
	return ClientIdentifier{duid: duid}
}

// iaidFromSubnetID derives the 4-byte IAID from subnetID by stripping
// hyphens and taking the first four remaining bytes. This is preserved
// exactly from the source driver (spec Design Notes): it is not a
// server-stable integer, and if the stripped id is shorter than four
// bytes the returned slice is correspondingly short rather than
// zero-padded.
func iaidFromSubnetID(subnetID string) []byte {
	stripped := make([]byte, 0, len(subnetID))
	for i := 0; i < len(subnetID); i++ {
		if subnetID[i] == '-' {
			continue
		}
		stripped = append(stripped, subnetID[i])
	}
	if len(stripped) > 4 {
		stripped = stripped[:4]
	}
	return stripped
}
