package sfulib

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtp"
)

// listenLoopbackUDP binds an OS-assigned UDP port on loopback, the
// "mediasoup-chosen port" spec §4.1 createPlainTransport describes.
func listenLoopbackUDP() (*net.UDPConn, int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, 0, err
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

// PlainConsumerTransport is the SFU-side endpoint of an egress plain-RTP
// bridge (§4.1 createPlainTransport / consumeWithPlainTransport, §6). It
// relays Consumer-written RTP packets out to an external encoder process.
// RTCP is unmuxed onto its own port pair, per §6.
type PlainConsumerTransport struct {
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	InternalRTPPort  int
	InternalRTCPPort int
	ExternalRTPPort  int
	ExternalRTCPPort int

	mu         sync.Mutex
	remoteRTP  *net.UDPAddr
	remoteRTCP *net.UDPAddr
	closed     bool
}

// NewPlainConsumerTransport allocates the loopback RTP/RTCP sockets and
// computes the external port pair the encoder child will be told to bind,
// offset by portOffset from the internal ports mediasoup-style.
func NewPlainConsumerTransport(portOffset int) (*PlainConsumerTransport, error) {
	rtpConn, rtpPort, err := listenLoopbackUDP()
	if err != nil {
		return nil, fmt.Errorf("sfulib: bind plain rtp socket: %w", err)
	}
	rtcpConn, rtcpPort, err := listenLoopbackUDP()
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("sfulib: bind plain rtcp socket: %w", err)
	}

	return &PlainConsumerTransport{
		rtpConn:          rtpConn,
		rtcpConn:         rtcpConn,
		InternalRTPPort:  rtpPort,
		InternalRTCPPort: rtcpPort,
		ExternalRTPPort:  rtpPort + portOffset,
		ExternalRTCPPort: rtcpPort + portOffset,
	}, nil
}

// Connect points the transport at the external port pair the encoder will
// listen on (§4.1: "the transport is connect()ed to that external port").
func (t *PlainConsumerTransport) Connect() error {
	rtpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("127.0.0.1:%d", t.ExternalRTPPort))
	if err != nil {
		return err
	}
	rtcpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("127.0.0.1:%d", t.ExternalRTCPPort))
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.remoteRTP, t.remoteRTCP = rtpAddr, rtcpAddr
	t.mu.Unlock()
	return nil
}

// WriteRTP implements rtpSink: a Consumer forwards relayed packets here.
func (t *PlainConsumerTransport) WriteRTP(p *rtp.Packet) error {
	t.mu.Lock()
	remote := t.remoteRTP
	t.mu.Unlock()
	if remote == nil {
		return fmt.Errorf("sfulib: plain consumer transport not connected")
	}
	buf, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = t.rtpConn.WriteToUDP(buf, remote)
	return err
}

// Close releases both sockets. Idempotent.
func (t *PlainConsumerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.rtpConn.Close()
	t.rtcpConn.Close()
	return nil
}

// PlainProducerTransport is the SFU-side endpoint of an ingest plain-RTP
// bridge (§4.1 createPlainTransportForProducer, §4.5, §6): comedia=true,
// meaning the remote sender's address is learned from the first inbound
// datagram rather than configured up front.
type PlainProducerTransport struct {
	conn *net.UDPConn
	Port int

	mu     sync.Mutex
	remote *net.UDPAddr
}

// NewPlainProducerTransport binds on loopback for comedia-style ingest. A
// non-zero port binds that exact port (used when the caller needs a known
// value); port 0 lets the OS assign one from its own ephemeral range, with
// no configured bounds applied. The actual bound port is read back from the
// socket either way.
func NewPlainProducerTransport(port int) (*PlainProducerTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, fmt.Errorf("sfulib: bind plain producer socket on %d: %w", port, err)
	}
	bound := conn.LocalAddr().(*net.UDPAddr).Port
	return &PlainProducerTransport{conn: conn, Port: bound}, nil
}

// ReadRTP implements rtpSource: the orchestrator's relay Producer pumps
// from this to learn the remote (comedia) address on first packet.
func (t *PlainProducerTransport) ReadRTP() (*rtp.Packet, error) {
	buf := make([]byte, 1500)
	n, raddr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.remote == nil {
		t.remote = raddr
	}
	t.mu.Unlock()

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, err
	}
	return pkt, nil
}

// RemoteAddr returns the comedia-learned remote address, or nil if no
// packet has arrived yet.
func (t *PlainProducerTransport) RemoteAddr() *net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *PlainProducerTransport) Close() error {
	return t.conn.Close()
}
