package testutil

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/lobby/internal/protocol"
)

// ControlReply is a decoded control-plane reply with the message left raw.
type ControlReply struct {
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message"`
}

// MessageString returns the message as a string, failing the test if it is not one.
func (r ControlReply) MessageString(t *testing.T) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(r.Message, &s); err != nil {
		t.Fatalf("reply message %s is not a string: %v", r.Message, err)
	}
	return s
}

// ControlRequest opens a connection to addr, sends env, and returns the reply.
//
// Precondition: addr must be a listening control-plane address.
// Postcondition: Returns the decoded reply or fails the test.
func ControlRequest(t *testing.T, addr string, env protocol.Envelope) ControlReply {
	t.Helper()
	data, err := protocol.Encode(env)
	if err != nil {
		t.Fatalf("encoding envelope: %v", err)
	}
	return ControlRaw(t, addr, data)
}

// ControlRaw sends raw bytes as a control-plane request and decodes the reply.
// The write side is closed after sending so truncated payloads terminate.
func ControlRaw(t *testing.T, addr string, data []byte) ControlReply {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("sending request: %v", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	body, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("reading reply: %v [%s]", err, time.Since(start))
	}
	var reply ControlReply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decoding reply %q: %v", body, err)
	}
	return reply
}

// UDPPeer is a data-plane endpoint used to send datagrams and observe relays.
type UDPPeer struct {
	conn *net.UDPConn
	t    *testing.T
}

// NewUDPPeer binds a UDP socket on a random loopback port.
//
// Postcondition: Returns a bound peer that is closed on test cleanup.
func NewUDPPeer(t *testing.T) *UDPPeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("binding udp peer: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &UDPPeer{conn: conn, t: t}
}

// Port returns the bound port.
func (p *UDPPeer) Port() int {
	return p.conn.LocalAddr().(*net.UDPAddr).Port
}

// Send writes env as one datagram to addr.
func (p *UDPPeer) Send(addr string, env protocol.Envelope) {
	p.t.Helper()
	data, err := protocol.Encode(env)
	if err != nil {
		p.t.Fatalf("encoding envelope: %v", err)
	}
	p.SendRaw(addr, data)
}

// SendRaw writes data as one datagram to addr.
func (p *UDPPeer) SendRaw(addr string, data []byte) {
	p.t.Helper()
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		p.t.Fatalf("resolving %s: %v", addr, err)
	}
	if _, err := p.conn.WriteToUDP(data, raddr); err != nil {
		p.t.Fatalf("sending datagram: %v", err)
	}
}

// Receive waits up to timeout for one datagram.
//
// Postcondition: Returns the payload and true, or nil and false on timeout.
func (p *UDPPeer) Receive(timeout time.Duration) ([]byte, bool) {
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 65535)
	n, _, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

// WaitFor polls cond every 10ms until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
