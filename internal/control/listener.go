// Package control implements the TCP control plane: one JSON request per
// connection, handled sequentially, plus the periodic idle sweep.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/config"
	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/protocol"
)

// Listener accepts control-plane connections and dispatches each request.
type Listener struct {
	cfg        config.ControlConfig
	store      *lobby.Store
	dispatcher *Dispatcher
	logger     *zap.Logger

	stopping atomic.Bool
	done     chan struct{}

	mu       sync.Mutex
	listener *net.TCPListener
	running  bool
}

// NewListener creates a control-plane listener.
//
// Precondition: cfg must have positive timeouts; store, dispatcher and logger
// must be non-nil.
// Postcondition: Returns a Listener ready to be started with Start.
func NewListener(cfg config.ControlConfig, store *lobby.Store, dispatcher *Dispatcher, logger *zap.Logger) *Listener {
	return &Listener{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start binds the TCP socket and serves requests until Stop is called.
// This method blocks until the listener has exited its loop.
//
// Precondition: The listener must not already be running.
// Postcondition: The socket is closed when this method returns.
func (l *Listener) Start() error {
	start := time.Now()

	addr, err := net.ResolveTCPAddr("tcp", l.cfg.Addr())
	if err != nil {
		return fmt.Errorf("resolving %s: %w", l.cfg.Addr(), err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.cfg.Addr(), err)
	}
	defer close(l.done)
	defer ln.Close()

	l.mu.Lock()
	l.listener = ln
	l.running = true
	l.mu.Unlock()

	l.logger.Info("control listener started",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	lastSweep := time.Now()
	for !l.stopping.Load() {
		if time.Since(lastSweep) >= l.cfg.SweepInterval {
			l.sweep()
			lastSweep = time.Now()
		}

		_ = ln.SetDeadline(time.Now().Add(l.cfg.AcceptTimeout))
		conn, err := ln.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if l.stopping.Load() {
				break
			}
			l.logger.Error("accepting connection", zap.Error(err))
			continue
		}
		l.handleConn(conn)
	}

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	l.logger.Info("control listener stopped")
	return nil
}

// handleConn serves exactly one request and closes the connection.
func (l *Listener) handleConn(conn *net.TCPConn) {
	defer conn.Close()
	start := time.Now()
	remote := conn.RemoteAddr().(*net.TCPAddr)

	_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
	var reply protocol.Reply
	data, err := readRequest(conn, l.cfg.MaxRequestBytes)
	if err != nil {
		l.logger.Warn("unreadable request",
			zap.String("remote_addr", remote.String()),
			zap.Error(err),
		)
		reply = protocol.Failure(MsgInvalidJSON)
	} else {
		reply = l.dispatcher.Dispatch(context.Background(), data, remote.IP)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	if _, err := conn.Write(reply.Bytes()); err != nil {
		l.logger.Warn("writing reply",
			zap.String("remote_addr", remote.String()),
			zap.Error(err),
		)
		return
	}

	l.logger.Debug("request served",
		zap.String("remote_addr", remote.String()),
		zap.Bool("success", reply.Success),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// readRequest reads one JSON value of at most limit bytes. The client does
// not have to close its write side.
func readRequest(r io.Reader, limit int) ([]byte, error) {
	dec := json.NewDecoder(io.LimitReader(r, int64(limit)))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return raw, nil
}

func (l *Listener) sweep() {
	start := time.Now()
	rooms := l.store.RemoveEmpty()
	clients := l.store.EvictIdle()
	if rooms > 0 || clients > 0 {
		l.logger.Info("idle sweep",
			zap.Int("rooms_removed", rooms),
			zap.Int("clients_evicted", clients),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Stop sets the shutdown flag and waits for the accept loop to observe it,
// which takes at most one accept timeout plus any in-flight request.
//
// Postcondition: Start has returned, or was never able to bind.
func (l *Listener) Stop() {
	l.stopping.Store(true)

	l.mu.Lock()
	started := l.listener != nil
	l.mu.Unlock()
	if started {
		<-l.done
	}
}

// Addr returns the bound address, or empty string if not yet listening.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Addr().String()
	}
	return ""
}

// IsRunning reports whether the accept loop is active.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
