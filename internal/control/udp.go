package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const maxDatagram = 4096

// UDPTransport receives command datagrams on a bound socket.
type UDPTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// ListenUDP binds addr, e.g. "127.0.0.1:7790".
func ListenUDP(addr string) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve control addr %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen control addr %q: %w", addr, err)
	}
	return &UDPTransport{conn: conn, buf: make([]byte, maxDatagram)}, nil
}

// Addr is the bound local address.
func (t *UDPTransport) Addr() net.Addr { return t.conn.LocalAddr() }

func (t *UDPTransport) String() string { return "udp://" + t.conn.LocalAddr().String() }

// Receive waits at most timeout for one datagram.
func (t *UDPTransport) Receive(_ context.Context, timeout time.Duration) ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, _, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return out, nil
}

func (t *UDPTransport) Close() error { return t.conn.Close() }

// SendUDP delivers one command datagram to addr.
func SendUDP(addr string, cmd Command) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial %q: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(Encode(cmd)); err != nil {
		return fmt.Errorf("send to %q: %w", addr, err)
	}
	return nil
}
