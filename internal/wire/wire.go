// Package wire owns the single process-wide IPv6 datagram endpoint this
// agent sends and receives DHCPv6 frames on.
package wire

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// ClientPort and ServerPort are the well-known DHCPv6 client/server
// ports (spec §6).
const (
	ClientPort = 546
	ServerPort = 547
)

// AllDHCPRelayAgentsAndServers is the multicast group SOLICIT is sent
// to.
const AllDHCPRelayAgentsAndServers = "ff02::1:2"

// SendTimeout bounds every outbound write (spec §5).
const SendTimeout = 3 * time.Second

// Endpoint is the agent's single IPv6 UDP socket, bound to port 546 on
// an optionally-specified interface.
type Endpoint struct {
	conn   *net.UDPConn
	pktv6  *ipv6.PacketConn
	iface  string
	server *net.UDPAddr
}

// Open binds the endpoint. iface, if non-empty, selects the outgoing
// interface for multicast sends and is used as the zone of every
// destination address. The socket itself is not bound to the interface:
// inbound datagrams arriving on any interface are read.
func Open(iface string) (*Endpoint, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", ClientPort))
	if err != nil {
		return nil, fmt.Errorf("wire: bind :%d: %w", ClientPort, err)
	}
	conn := pc.(*net.UDPConn)

	pktv6 := ipv6.NewPacketConn(conn)
	if err := pktv6.SetMulticastHopLimit(1); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: set multicast hop limit: %w", err)
	}

	var netIface *net.Interface
	if iface != "" {
		netIface, err = net.InterfaceByName(iface)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("wire: lookup interface %s: %w", iface, err)
		}
		if err := pktv6.SetMulticastInterface(netIface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("wire: bind multicast interface %s: %w", iface, err)
		}
	}

	return &Endpoint{conn: conn, pktv6: pktv6, iface: iface}, nil
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// ReadFrom blocks for the next inbound datagram, up to 1024 bytes
// (spec §4.3).
func (e *Endpoint) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read: %w", err)
	}
	return n, addr, nil
}

// SendMulticast sends frame to ff02::1:2:547, used for SOLICIT.
func (e *Endpoint) SendMulticast(frame []byte) error {
	addr := &net.UDPAddr{IP: net.ParseIP(AllDHCPRelayAgentsAndServers), Port: ServerPort, Zone: e.iface}
	return e.send(frame, addr)
}

// SendUnicast sends frame to the negotiated server address, used for
// REQUEST/RENEW/RELEASE.
func (e *Endpoint) SendUnicast(frame []byte, server net.IP) error {
	addr := &net.UDPAddr{IP: server, Port: ServerPort, Zone: e.iface}
	return e.send(frame, addr)
}

func (e *Endpoint) send(frame []byte, addr *net.UDPAddr) error {
	if err := e.conn.SetWriteDeadline(time.Now().Add(SendTimeout)); err != nil {
		return fmt.Errorf("wire: set write deadline: %w", err)
	}
	if _, err := e.conn.WriteToUDP(frame, addr); err != nil {
		return fmt.Errorf("wire: send to %s: %w", addr, err)
	}
	return nil
}
