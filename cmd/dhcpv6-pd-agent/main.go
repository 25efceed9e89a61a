// Command dhcpv6-pd-agent runs the DHCPv6 Prefix Delegation client
// agent: it loads configuration, opens the wire endpoint, starts the
// demultiplexer and session registry, recovers persisted subnets, and
// blocks until SIGINT (spec §6: "Exactly one executable entry point").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neutron-pd/dhcpv6-pd-agent/internal/agentconfig"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/agentlog"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/demux"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/registry"
	"github.com/neutron-pd/dhcpv6-pd-agent/internal/wire"
)

var (
	configPath string
	socketLoc  string
	iface      string
	confDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dhcpv6-pd-agent",
	Short: "DHCPv6 Prefix Delegation client agent",
	Long: `dhcpv6-pd-agent acquires and maintains IPv6 prefixes from upstream
DHCPv6 servers on behalf of an orchestrator process, one PD session per
registered tenant subnet.`,
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "optional YAML configuration file")
	flags.StringVar(&socketLoc, "pd-socket-loc", "", "directory for unix datagram sockets (default /tmp)")
	flags.StringVar(&iface, "pd-interface", "", "physical interface to bind the IPv6 socket to")
	flags.StringVar(&confDir, "pd-confs", "", "directory for persisted subnet records (required)")
	flags.StringVar(&logLevel, "log-level", "", "log verbosity: debug for debug output, anything else logs at info (default info)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return err
	}
	if socketLoc != "" {
		cfg.PDSocketLoc = socketLoc
	}
	if iface != "" {
		cfg.PDInterface = iface
	}
	if confDir != "" {
		cfg.PDConfs = confDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := agentlog.New(cfg.LogLevel == "debug")
	if err != nil {
		return fmt.Errorf("dhcpv6-pd-agent: build logger: %w", err)
	}
	ctx := agentlog.WithContext(context.Background(), logger)
	log := logger.WithName("main")

	endpoint, err := wire.Open(cfg.PDInterface)
	if err != nil {
		return fmt.Errorf("dhcpv6-pd-agent: open wire endpoint: %w", err)
	}

	mux := demux.New(func() (demux.Frame, error) {
		buf := make([]byte, 1024)
		n, addr, err := endpoint.ReadFrom(buf)
		if err != nil {
			return demux.Frame{}, err
		}
		sender := ""
		if addr != nil {
			sender = addr.IP.String()
		}
		return demux.Frame{Bytes: append([]byte(nil), buf[:n]...), Sender: sender}, nil
	})

	reg := registry.New(agentTransport{Endpoint: endpoint, Demux: mux}, cfg.PDConfs, cfg.PDSocketLoc)

	go mux.Run(ctx)
	reg.Recover(ctx)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- reg.ListenAndServe(ctx) }()

	log.Info("agent started",
		"pd_confs", cfg.PDConfs, "pd_socket_loc", cfg.PDSocketLoc, "pd_interface", cfg.PDInterface)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Info("received SIGINT, shutting down")
	case err := <-serveErrCh:
		if err != nil {
			log.Info("control socket serve loop exited", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reg.Shutdown(shutdownCtx)
	// Close the socket before stopping the RX goroutine: Stop waits for
	// the goroutine to exit, but it can only notice shutdown between
	// reads, and a read blocks indefinitely on an open socket with no
	// more inbound traffic.
	endpoint.Close()
	mux.Stop()
	return nil
}

// agentTransport composes the wire endpoint's send methods with the
// demultiplexer's waiter registry into the single session.Transport
// seam the session engine depends on (spec §2's C2+C3 -> C4 data flow).
type agentTransport struct {
	*wire.Endpoint
	*demux.Demux
}
