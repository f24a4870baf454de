package lobby

import (
	"net"
	"time"
)

// Client is a registered session. Its return address is fixed at registration
// and every relay delivery for the session goes there.
type Client struct {
	// ID is the session identifier issued at registration.
	ID string
	// Addr is the data-plane return address.
	Addr *net.UDPAddr
	// RoomID is the room the client currently belongs to, or "" when none.
	RoomID string
	// RegisteredAt is when the session was created.
	RegisteredAt time.Time
	// LastSeen is the last time any operation referenced the session.
	LastSeen time.Time
}

// ClientInfo is a read-only snapshot of a Client.
type ClientInfo struct {
	ID           string
	Addr         string
	RoomID       string
	RegisteredAt time.Time
	LastSeen     time.Time
}

func (c *Client) info() ClientInfo {
	return ClientInfo{
		ID:           c.ID,
		Addr:         c.Addr.String(),
		RoomID:       c.RoomID,
		RegisteredAt: c.RegisteredAt,
		LastSeen:     c.LastSeen,
	}
}
