package hip

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/msgboxio/log"
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Conn is the backbone duplex: raw IP datagrams addressed to a specific
// IP protocol number in and out. Mirrors the teacher's UDP-keyed Conn
// seam in conn.go, retargeted from a transport port to an IP protocol
// number, since spec §6's backbone wire protocol is carried directly over
// IP (139 for HIP control, 51 for AH data) rather than over UDP.
type Conn interface {
	ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error)
	WritePacket(payload []byte, remoteAddr net.Addr) error
	LocalAddr() net.Addr
	Close() error
}

type rawConnV4 ipv4.PacketConn
type rawConnV6 ipv6.PacketConn

func (c *rawConnV4) Close() error        { return c.Conn.Close() }
func (c *rawConnV4) LocalAddr() net.Addr { return c.Conn.LocalAddr() }
func (c *rawConnV6) Close() error        { return c.Conn.Close() }
func (c *rawConnV6) LocalAddr() net.Addr { return c.Conn.LocalAddr() }

// ListenBackbone opens a raw IP socket bound to address, carrying only
// datagrams of the given IP protocol number. The router opens one of
// these per direction it cares about (139 for HIP control, 51 for AH
// data), the same way the teacher opens one UDP socket per address
// family.
func ListenBackbone(network, address string, ipProto int) (Conn, error) {
	switch network {
	case "ip4":
		return listenIP4(address, ipProto)
	case "ip6":
		return listenIP6(address, ipProto)
	}
	return nil, errors.Errorf("hip: unsupported backbone network %q", network)
}

func listenIP4(address string, ipProto int) (*rawConnV4, error) {
	raw, err := net.ListenPacket(fmt.Sprintf("ip4:%d", ipProto), address)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv4.NewPacketConn(raw)
	cf := ipv4.FlagSrc | ipv4.FlagDst | ipv4.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warningf("hip: backbone source address detection unsupported for ip proto %d", ipProto)
		} else {
			p.Close()
			return nil, err
		}
	}
	return (*rawConnV4)(p), nil
}

func listenIP6(address string, ipProto int) (*rawConnV6, error) {
	raw, err := net.ListenPacket(fmt.Sprintf("ip6:%d", ipProto), address)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv6.NewPacketConn(raw)
	cf := ipv6.FlagSrc | ipv6.FlagDst | ipv6.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warningf("hip: backbone source address detection unsupported for ip proto %d", ipProto)
		} else {
			p.Close()
			return nil, err
		}
	}
	return (*rawConnV6)(p), nil
}

func (p *rawConnV4) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 9000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err == nil {
		b = b[:n]
		if cm != nil {
			localIP = cm.Dst
		}
	}
	return
}

func (p *rawConnV6) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 9000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err == nil {
		b = b[:n]
		if cm != nil {
			localIP = cm.Dst
		}
	}
	return
}

func (p *rawConnV4) WritePacket(payload []byte, remoteAddr net.Addr) error {
	n, err := p.WriteTo(payload, nil, remoteAddr)
	if err != nil {
		return err
	} else if n != len(payload) {
		return io.ErrShortWrite
	}
	return nil
}

func (p *rawConnV6) WritePacket(payload []byte, remoteAddr net.Addr) error {
	n, err := p.WriteTo(payload, nil, remoteAddr)
	if err != nil {
		return err
	} else if n != len(payload) {
		return io.ErrShortWrite
	}
	return nil
}

// protocolNotSupported reports whether err indicates the platform
// doesn't support the requested IP-level control message. Grounded on
// the teacher's own check in conn.go (there noted as copied from
// golang.org/x/net/internal/nettest, an internal package that can't be
// imported outside its own module).
func protocolNotSupported(err error) bool {
	switch err := err.(type) {
	case syscall.Errno:
		switch err {
		case syscall.EPROTONOSUPPORT, syscall.ENOPROTOOPT:
			return true
		}
	case *os.SyscallError:
		switch err := err.Err.(type) {
		case syscall.Errno:
			switch err {
			case syscall.EPROTONOSUPPORT, syscall.ENOPROTOOPT:
				return true
			}
		}
	}
	return false
}
