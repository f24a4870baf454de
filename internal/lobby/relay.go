package lobby

import (
	"fmt"
	"net"

	"github.com/samber/lo"
)

// Transport writes a datagram to a peer. net.PacketConn satisfies it.
type Transport interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// DeliveryError records a failed write to one recipient.
type DeliveryError struct {
	ClientID string
	Addr     string
	Err      error
}

// Delivery summarizes one relay operation.
type Delivery struct {
	// Delivered lists the recipients the message was written to.
	Delivered []string
	// Ignored lists requested recipients that are not members of the room.
	Ignored []string
	// Failures holds per-recipient write errors.
	Failures []DeliveryError
}

type target struct {
	id   string
	addr *net.UDPAddr
}

// Send delivers message to every member of roomID except the sender.
// Recipients are resolved under the lock; writes happen after it is released.
//
// Precondition: transport must be non-nil.
// Postcondition: Returns ErrUnknownClient, ErrRoomNotFound, or ErrNotInRoom
// without sending anything; otherwise every target is attempted once.
func (s *Store) Send(senderID, roomID string, message []byte, transport Transport) (Delivery, error) {
	targets, _, err := s.resolveTargets(senderID, roomID, nil)
	if err != nil {
		return Delivery{}, err
	}
	return deliver(targets, message, transport), nil
}

// SendTo delivers message to the members of roomID named in recipients.
// Named recipients outside the room are ignored.
//
// Precondition: transport must be non-nil.
// Postcondition: Same error contract as Send.
func (s *Store) SendTo(senderID, roomID string, recipients []string, message []byte, transport Transport) (Delivery, error) {
	targets, ignored, err := s.resolveTargets(senderID, roomID, lo.Uniq(recipients))
	if err != nil {
		return Delivery{}, err
	}
	d := deliver(targets, message, transport)
	d.Ignored = ignored
	return d, nil
}

// resolveTargets snapshots delivery addresses. A nil recipients slice selects
// every member other than the sender.
func (s *Store) resolveTargets(senderID, roomID string, recipients []string) ([]target, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.clientLocked(senderID); err != nil {
		return nil, nil, err
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, fmt.Errorf("relaying to %q: %w", roomID, ErrRoomNotFound)
	}
	if !room.has(senderID) {
		return nil, nil, fmt.Errorf("relaying to %q: %w", roomID, ErrNotInRoom)
	}

	var ids, ignored []string
	if recipients == nil {
		ids = lo.Without(room.memberIDs(), senderID)
	} else {
		ids, ignored = lo.FilterReject(recipients, func(id string, _ int) bool {
			return room.has(id)
		})
	}

	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.clients[id]; ok {
			targets = append(targets, target{id: id, addr: c.Addr})
		}
	}
	return targets, ignored, nil
}

func deliver(targets []target, message []byte, transport Transport) Delivery {
	var d Delivery
	for _, t := range targets {
		if _, err := transport.WriteTo(message, t.addr); err != nil {
			d.Failures = append(d.Failures, DeliveryError{ClientID: t.id, Addr: t.addr.String(), Err: err})
			continue
		}
		d.Delivered = append(d.Delivered, t.id)
	}
	return d
}
