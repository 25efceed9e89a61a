// Package control implements the comma-separated ASCII wire protocol
// shared by the session registry (server side) and the client stub
// (caller side) over AF_UNIX SOCK_DGRAM sockets.
package control

import (
	"fmt"
	"strings"
)

// CONTROL_PATH is the well-known control socket filename, relative to
// the configured socket directory.
const CONTROL_PATH = "dhcpv6_pd_agent.sock"

// MaxDatagramBytes bounds an inbound control command, per spec §4.5.
const MaxDatagramBytes = 1024

// RESP_PATH returns the per-request response socket filename for a
// given response id.
func RESP_PATH(responseID string) string {
	return "dhcpv6_pd_agent_resp_" + responseID + ".sock"
}

// Command is a parsed control-socket datagram.
type Command struct {
	Verb string // "enable", "disable", or "get"
	Arg1 string // subnet_id
	Arg2 string // owner_pid for enable/disable, response_id for get
}

// Enable encodes an enable command: "enable,<subnet_id>,<owner_pid>,".
func Enable(subnetID, ownerPID string) string {
	return fmt.Sprintf("enable,%s,%s,", subnetID, ownerPID)
}

// Disable encodes a disable command: "disable,<subnet_id>,<owner_pid>,".
func Disable(subnetID, ownerPID string) string {
	return fmt.Sprintf("disable,%s,%s,", subnetID, ownerPID)
}

// Get encodes a get command: "get,<subnet_id>,<response_id>,".
func Get(subnetID, responseID string) string {
	return fmt.Sprintf("get,%s,%s,", subnetID, responseID)
}

// Parse decodes a raw datagram into a Command. The wire format always
// has a trailing comma after the third field, so splitting on "," and
// dropping the final empty element yields exactly three parts.
func Parse(raw string) (Command, error) {
	raw = strings.TrimRight(raw, "\x00")
	parts := strings.Split(raw, ",")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) != 3 {
		return Command{}, fmt.Errorf("control: malformed command %q", raw)
	}
	return Command{Verb: parts[0], Arg1: parts[1], Arg2: parts[2]}, nil
}

// NotRunning is the literal string returned by a "get" on a subnet with
// no live session.
const NotRunning = "NOT_RUNNING"
