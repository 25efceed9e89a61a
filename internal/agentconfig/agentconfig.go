// Package agentconfig loads the three configuration options the agent
// needs (spec §6): pd_socket_loc, pd_interface, pd_confs. The original
// driver sourced these from oslo_config; this rework adopts the pack's
// own CLI-tool configuration idiom instead (krisarmstrong/niac-go): an
// optional YAML file parsed with gopkg.in/yaml.v3, with every field
// overridable by a cobra/pflag flag in cmd/dhcpv6-pd-agent.
package agentconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPDSocketLoc is the fallback socket directory (spec §6).
const DefaultPDSocketLoc = "/tmp"

// Config holds the agent's configuration.
type Config struct {
	// PDSocketLoc is the directory for unix datagram sockets.
	PDSocketLoc string `yaml:"pd_socket_loc"`
	// PDInterface is the physical interface to bind the IPv6 socket to.
	PDInterface string `yaml:"pd_interface"`
	// PDConfs is the directory for persisted subnet_<id> records. Has no
	// default; Validate rejects an empty value.
	PDConfs string `yaml:"pd_confs"`
	// LogLevel selects internal/agentlog's verbosity. "debug" selects the
	// development logger with debug output; any other value, including
	// "warn" and "error", selects the production logger at info level.
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with every documented default applied.
// PDConfs has no default and is left empty.
func Default() Config {
	return Config{PDSocketLoc: DefaultPDSocketLoc, LogLevel: "info"}
}

// Load reads path as YAML into a Config seeded with Default(), so a
// config file only needs to mention the fields it overrides. An empty
// path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("agentconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("agentconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces that pd_confs is set (spec §6: "required").
func (c Config) Validate() error {
	if c.PDConfs == "" {
		return fmt.Errorf("agentconfig: pd_confs is required")
	}
	return nil
}
