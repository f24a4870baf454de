package control

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/catalog"
	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/protocol"
)

// Failure messages returned on the control plane.
const (
	MsgMustRegister      = "must register"
	MsgUnknownIdentifier = "unknown identifier"
	MsgUnknownAction     = "unknown action"
	MsgInvalidRequest    = "invalid request"
	MsgInvalidJSON       = "invalid json"
	MsgLookupUnavailable = "lookup unavailable"
	MsgLookupFailed      = "lookup failed"
)

// Dispatcher maps one decoded control request onto the Store.
type Dispatcher struct {
	store         *lobby.Store
	catalog       catalog.Lookup
	lookupTimeout time.Duration
	logger        *zap.Logger
}

// NewDispatcher creates a Dispatcher. lookup may be nil, in which case the
// lookup action replies with MsgLookupUnavailable.
//
// Precondition: store and logger must be non-nil.
func NewDispatcher(store *lobby.Store, lookup catalog.Lookup, lookupTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &Dispatcher{
		store:         store,
		catalog:       lookup,
		lookupTimeout: lookupTimeout,
		logger:        logger,
	}
}

// Dispatch decodes data, runs the requested action, and builds the reply.
// peer is the IP of the control-plane connection; it becomes the host of the
// data-plane address on register.
//
// Postcondition: Always returns a reply; never panics on malformed input.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte, peer net.IP) protocol.Reply {
	env, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidJSON) {
			return protocol.Failure(MsgInvalidJSON)
		}
		return protocol.Failure(MsgInvalidRequest)
	}

	if env.Action == protocol.ActionRegister {
		return d.register(env, peer)
	}

	if env.Identifier == "" {
		return protocol.Failure(MsgMustRegister)
	}
	if !d.store.Touch(env.Identifier) {
		d.logger.Info("unknown identifier",
			zap.String("identifier", env.Identifier),
			zap.String("peer", peer.String()),
		)
		return protocol.Failure(MsgUnknownIdentifier)
	}

	switch env.Action {
	case protocol.ActionCreate:
		return d.create(env)
	case protocol.ActionJoin:
		return d.join(env)
	case protocol.ActionAutoJoin:
		return d.autoJoin(env)
	case protocol.ActionLeave:
		return d.leave(env)
	case protocol.ActionGetRooms:
		return protocol.Success(d.store.Rooms())
	case protocol.ActionLookup:
		return d.lookup(ctx, env)
	default:
		return protocol.Failure(MsgUnknownAction)
	}
}

func (d *Dispatcher) register(env protocol.Envelope, peer net.IP) protocol.Reply {
	port, err := protocol.RegisterPort(env.Payload)
	if err != nil {
		return protocol.Failure(MsgInvalidRequest)
	}
	client := d.store.Register(&net.UDPAddr{IP: peer, Port: port})
	d.logger.Info("client registered",
		zap.String("client_id", client.ID),
		zap.String("udp_addr", client.Addr),
	)
	return protocol.Success(client.ID)
}

func (d *Dispatcher) create(env protocol.Envelope) protocol.Reply {
	roomID, err := d.store.CreateAndJoin(env.Identifier, protocol.PayloadString(env.Payload))
	if err != nil {
		return d.domainFailure(err, "")
	}
	d.logger.Info("room created",
		zap.String("room_id", roomID),
		zap.String("client_id", env.Identifier),
	)
	return protocol.Success(roomID)
}

func (d *Dispatcher) join(env protocol.Envelope) protocol.Reply {
	roomID := env.RoomRef()
	if roomID == "" {
		return protocol.Failure(MsgInvalidRequest)
	}
	if err := d.store.Join(env.Identifier, roomID); err != nil {
		return d.domainFailure(err, roomID)
	}
	return protocol.Success(roomID)
}

func (d *Dispatcher) autoJoin(env protocol.Envelope) protocol.Reply {
	roomID, err := d.store.AutoJoin(env.Identifier)
	if err != nil {
		return d.domainFailure(err, "")
	}
	return protocol.Success(roomID)
}

func (d *Dispatcher) leave(env protocol.Envelope) protocol.Reply {
	roomID := env.RoomRef()
	if roomID == "" {
		return protocol.Failure(MsgInvalidRequest)
	}
	if err := d.store.Leave(env.Identifier, roomID); err != nil {
		return d.domainFailure(err, roomID)
	}
	return protocol.Success(roomID)
}

func (d *Dispatcher) lookup(ctx context.Context, env protocol.Envelope) protocol.Reply {
	if d.catalog == nil {
		return protocol.Failure(MsgLookupUnavailable)
	}
	var p protocol.LookupPayload
	if err := protocol.DecodePayload(env.Payload, &p); err != nil {
		return protocol.Failure(MsgInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	start := time.Now()
	entries, err := d.catalog.Get(ctx, p.IDs)
	if err != nil {
		d.logger.Warn("catalog lookup failed",
			zap.Int64s("ids", p.IDs),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return protocol.Failure(MsgLookupFailed)
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	return protocol.Success(entries)
}

// domainFailure maps a Store error onto its reply. Room-scoped errors echo the
// requested room id as the message.
func (d *Dispatcher) domainFailure(err error, roomID string) protocol.Reply {
	switch {
	case errors.Is(err, lobby.ErrUnknownClient):
		return protocol.Failure(MsgUnknownIdentifier)
	case errors.Is(err, lobby.ErrRoomNotFound),
		errors.Is(err, lobby.ErrRoomFull),
		errors.Is(err, lobby.ErrNotInRoom):
		d.logger.Debug("request rejected",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return protocol.Failure(roomID)
	default:
		d.logger.Error("unexpected store error", zap.Error(err))
		return protocol.Failure(MsgInvalidRequest)
	}
}
