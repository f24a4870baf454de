// Package relay implements the UDP data plane. Datagrams carrying send or
// sendto envelopes are forwarded to room members; nothing is ever sent back
// to the sender.
package relay

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/config"
	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/protocol"
)

// Listener receives data-plane datagrams and relays them through the Store.
type Listener struct {
	cfg    config.RelayConfig
	store  *lobby.Store
	logger *zap.Logger

	stopping atomic.Bool
	done     chan struct{}

	mu      sync.Mutex
	conn    net.PacketConn
	running bool
}

// NewListener creates a data-plane listener.
//
// Precondition: cfg must have a positive read timeout; store and logger must be non-nil.
func NewListener(cfg config.RelayConfig, store *lobby.Store, logger *zap.Logger) *Listener {
	return &Listener{
		cfg:    cfg,
		store:  store,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start binds the UDP socket and relays datagrams until Stop is called.
//
// Precondition: The listener must not already be running.
// Postcondition: The socket is closed when this method returns.
func (l *Listener) Start() error {
	conn, err := net.ListenPacket("udp", l.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.cfg.Addr(), err)
	}
	defer close(l.done)
	defer conn.Close()

	l.mu.Lock()
	l.conn = conn
	l.running = true
	l.mu.Unlock()

	l.logger.Info("relay listener started", zap.String("addr", conn.LocalAddr().String()))

	buf := make([]byte, l.cfg.MaxDatagramBytes)
	for !l.stopping.Load() {
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if l.stopping.Load() {
				break
			}
			l.logger.Error("reading datagram", zap.Error(err))
			continue
		}
		l.handle(buf[:n], from, conn)
	}

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	l.logger.Info("relay listener stopped")
	return nil
}

// handle relays one datagram. Every failure is logged and the datagram dropped.
func (l *Listener) handle(data []byte, from net.Addr, transport lobby.Transport) {
	env, err := protocol.Decode(data)
	if err != nil {
		l.drop(from, "malformed datagram", err)
		return
	}

	roomID := env.RoomRef()
	var delivery lobby.Delivery
	switch env.Action {
	case protocol.ActionSend:
		p, err := protocol.DecodeSend(env.Payload)
		if err != nil {
			l.drop(from, "invalid send payload", err)
			return
		}
		delivery, err = l.store.Send(env.Identifier, roomID, p.Message, transport)
		if err != nil {
			l.drop(from, "send rejected", err)
			return
		}
	case protocol.ActionSendTo:
		p, err := protocol.DecodeSendTo(env.Payload)
		if err != nil {
			l.drop(from, "invalid sendto payload", err)
			return
		}
		delivery, err = l.store.SendTo(env.Identifier, roomID, p.Recipients, p.Message, transport)
		if err != nil {
			l.drop(from, "sendto rejected", err)
			return
		}
	default:
		l.drop(from, "unknown action", fmt.Errorf("action %q", env.Action))
		return
	}

	for _, f := range delivery.Failures {
		l.logger.Debug("delivery failed",
			zap.String("client_id", f.ClientID),
			zap.String("udp_addr", f.Addr),
			zap.Error(f.Err),
		)
	}
	if len(delivery.Ignored) > 0 {
		l.logger.Debug("recipients outside room ignored",
			zap.String("room_id", roomID),
			zap.Strings("recipients", delivery.Ignored),
		)
	}
}

func (l *Listener) drop(from net.Addr, reason string, err error) {
	l.logger.Warn("datagram dropped",
		zap.String("remote_addr", from.String()),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// Stop sets the shutdown flag and waits for the receive loop to observe it.
//
// Postcondition: Start has returned, or was never able to bind.
func (l *Listener) Stop() {
	l.stopping.Store(true)

	l.mu.Lock()
	started := l.conn != nil
	l.mu.Unlock()
	if started {
		<-l.done
	}
}

// Addr returns the bound address, or empty string if not yet listening.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.LocalAddr().String()
	}
	return ""
}

// IsRunning reports whether the receive loop is active.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
