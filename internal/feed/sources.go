package feed

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.bug.st/serial"
)

// OpenSerial opens the AIS receiver at path.
func OpenSerial(path string, opts PortOptions) (*LineMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewLineMux[serial.Port](port), nil
}

// UDPPort reads datagrams from a UDP socket. Each datagram holds one or
// more newline-separated lines; a missing trailing newline is added.
type UDPPort struct {
	conn *net.UDPConn
	buf  []byte
	rest []byte
}

// ListenUDP listens on addr, e.g. ":10110".
func ListenUDP(addr string) (*LineMux[*UDPPort], error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewLineMux(&UDPPort{conn: conn, buf: make([]byte, 65536)}), nil
}

// Addr returns the bound local address.
func (p *UDPPort) Addr() net.Addr { return p.conn.LocalAddr() }

func (p *UDPPort) Read(b []byte) (int, error) {
	for len(p.rest) == 0 {
		n, _, err := p.conn.ReadFromUDP(p.buf)
		if err != nil {
			return 0, err
		}
		p.rest = terminate(p.buf[:n])
	}
	n := copy(b, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

func (p *UDPPort) Close() error { return p.conn.Close() }

func terminate(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	out := append([]byte(nil), payload...)
	if !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}
	return out
}

// CapturePort replays the UDP payloads of a pcap capture as a line stream.
// Only packets to the given destination port are used; 0 takes every UDP
// packet.
type CapturePort struct {
	mu     sync.Mutex
	file   io.Closer
	reader *pcapgo.Reader
	port   layers.UDPPort
	rest   []byte

	Packets int // UDP payloads replayed
}

// OpenCapture opens a pcap file for replay.
func OpenCapture(path string, udpPort int) (*LineMux[*CapturePort], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	p, err := NewCapturePort(f, udpPort)
	if err != nil {
		f.Close()
		return nil, err
	}
	return NewLineMux(p), nil
}

// NewCapturePort reads a pcap stream from r. If r is an io.Closer it is
// closed with the port.
func NewCapturePort(r io.Reader, udpPort int) (*CapturePort, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	p := &CapturePort{reader: reader, port: layers.UDPPort(udpPort)}
	if c, ok := r.(io.Closer); ok {
		p.file = c
	}
	return p, nil
}

func (p *CapturePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.rest) == 0 {
		data, _, err := p.reader.ReadPacketData()
		if err != nil {
			return 0, err
		}
		packet := gopacket.NewPacket(data, p.reader.LinkType(), gopacket.Default)
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || (p.port != 0 && udp.DstPort != p.port) {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		p.Packets++
		p.rest = terminate(udp.Payload)
	}
	n := copy(b, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

func (p *CapturePort) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
