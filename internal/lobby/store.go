// Package lobby holds the shared identity and room state for both the control
// and data planes. Every operation runs under the Store's single mutex.
package lobby

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxClients bounds the client table. When full, Register evicts the least
// recently seen client. Zero means unbounded.
func WithMaxClients(n int) Option {
	return func(s *Store) { s.maxClients = n }
}

// WithClientTTL sets the idle duration after which EvictIdle removes a client.
// Zero disables expiry.
func WithClientTTL(ttl time.Duration) Option {
	return func(s *Store) { s.clientTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store tracks registered clients, rooms, and membership.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	clients  map[string]*Client // session id → client
	rooms    map[string]*Room   // room id → room
	order    []string           // room ids in creation order

	maxClients int
	clientTTL  time.Duration
	now        func() time.Time
}

// NewStore creates an empty Store whose rooms all hold at most capacity members.
//
// Precondition: capacity must be >= 1.
// Postcondition: Returns an empty Store.
func NewStore(capacity int, opts ...Option) *Store {
	if capacity < 1 {
		capacity = 1
	}
	s := &Store{
		capacity: capacity,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]*Room),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the uniform room capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Register creates a new client session whose relay deliveries go to addr.
//
// Precondition: addr must be non-nil.
// Postcondition: Returns a snapshot of the new client. Never fails.
func (s *Store) Register(addr *net.UDPAddr) ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxClients > 0 && len(s.clients) >= s.maxClients {
		s.evictOldestLocked()
	}

	now := s.now()
	c := &Client{
		ID:           uuid.NewString(),
		Addr:         cloneAddr(addr),
		RegisteredAt: now,
		LastSeen:     now,
	}
	s.clients[c.ID] = c
	return c.info()
}

// Touch records activity for a client.
//
// Postcondition: Returns false if clientID is unknown.
func (s *Store) Touch(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if ok {
		c.LastSeen = s.now()
	}
	return ok
}

// Create inserts an empty room with the given display name.
//
// Postcondition: Returns the new room id. Never fails; names are not deduplicated.
func (s *Store) Create(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(name).ID
}

// CreateAndJoin creates a room and places the client in it as one atomic step.
//
// Postcondition: Returns the new room id, or ErrUnknownClient.
func (s *Store) CreateAndJoin(clientID, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clientLocked(clientID)
	if err != nil {
		return "", err
	}
	room := s.createLocked(name)
	s.moveLocked(c, room)
	return room.ID, nil
}

// Join adds the client to the room. Re-joining the current room is a no-op.
// Joining a different room moves the client out of its previous one.
//
// Postcondition: Returns nil on success, or ErrUnknownClient, ErrRoomNotFound,
// or ErrRoomFull. State is unchanged on error.
func (s *Store) Join(clientID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clientLocked(clientID)
	if err != nil {
		return err
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("joining %q: %w", roomID, ErrRoomNotFound)
	}
	if room.has(clientID) {
		return nil
	}
	if room.full() {
		return fmt.Errorf("joining %q: %w", roomID, ErrRoomFull)
	}
	s.moveLocked(c, room)
	return nil
}

// AutoJoin places the client in the first room, in creation order, that has a
// free slot or already holds the client. When every room is full a new room
// is created.
//
// Postcondition: Returns the resolved room id, or ErrUnknownClient.
func (s *Store) AutoJoin(clientID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clientLocked(clientID)
	if err != nil {
		return "", err
	}
	for _, id := range s.order {
		room := s.rooms[id]
		if room.has(clientID) {
			return room.ID, nil
		}
		if !room.full() {
			s.moveLocked(c, room)
			return room.ID, nil
		}
	}
	room := s.createLocked("")
	s.moveLocked(c, room)
	return room.ID, nil
}

// Leave removes the client from the room. Empty rooms are left for RemoveEmpty.
//
// Postcondition: Returns nil on success, or ErrUnknownClient, ErrRoomNotFound,
// or ErrNotInRoom. State is unchanged on error.
func (s *Store) Leave(clientID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.clientLocked(clientID)
	if err != nil {
		return err
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("leaving %q: %w", roomID, ErrRoomNotFound)
	}
	if !room.remove(clientID) {
		return fmt.Errorf("leaving %q: %w", roomID, ErrNotInRoom)
	}
	c.RoomID = ""
	return nil
}

// RemoveEmpty deletes every room with no members.
//
// Postcondition: Returns the number of rooms removed.
func (s *Store) RemoveEmpty() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	s.order = lo.Filter(s.order, func(id string, _ int) bool {
		if s.rooms[id].empty() {
			delete(s.rooms, id)
			removed++
			return false
		}
		return true
	})
	return removed
}

// EvictIdle removes clients not seen within the configured TTL, along with
// their room memberships. Does nothing when no TTL is configured.
//
// Postcondition: Returns the number of clients removed.
func (s *Store) EvictIdle() int {
	if s.clientTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.clientTTL)
	evicted := 0
	for id, c := range s.clients {
		if c.LastSeen.Before(cutoff) {
			s.removeClientLocked(id)
			evicted++
		}
	}
	return evicted
}

// Rooms returns a snapshot of every room in creation order.
func (s *Store) Rooms() []RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.order, func(id string, _ int) RoomInfo {
		return s.rooms[id].info()
	})
}

// Room returns a snapshot of a single room including its members.
//
// Postcondition: Returns (detail, true) if found, or (zero, false) otherwise.
func (s *Store) Room(roomID string) (RoomDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return RoomDetail{}, false
	}
	return RoomDetail{RoomInfo: room.info(), MemberIDs: room.memberIDs()}, true
}

// Client returns a snapshot of a registered client.
//
// Postcondition: Returns (info, true) if found, or (zero, false) otherwise.
func (s *Store) Client(clientID string) (ClientInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return ClientInfo{}, false
	}
	return c.info(), true
}

// ClientCount returns the number of registered clients.
func (s *Store) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// RoomCount returns the number of rooms, empty ones included.
func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Store) clientLocked(clientID string) (*Client, error) {
	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %q: %w", clientID, ErrUnknownClient)
	}
	c.LastSeen = s.now()
	return c, nil
}

func (s *Store) createLocked(name string) *Room {
	id := uuid.NewString()
	if name == "" {
		name = "room-" + id[:8]
	}
	room := newRoom(id, name, s.capacity)
	s.rooms[id] = room
	s.order = append(s.order, id)
	return room
}

// moveLocked puts c into room, leaving its previous room first.
//
// Precondition: room has a free slot or already holds c.
func (s *Store) moveLocked(c *Client, room *Room) {
	if c.RoomID != "" && c.RoomID != room.ID {
		if prev, ok := s.rooms[c.RoomID]; ok {
			prev.remove(c.ID)
		}
	}
	room.add(c.ID)
	c.RoomID = room.ID
}

func (s *Store) removeClientLocked(clientID string) {
	c, ok := s.clients[clientID]
	if !ok {
		return
	}
	if room, ok := s.rooms[c.RoomID]; ok {
		room.remove(clientID)
	}
	delete(s.clients, clientID)
}

func (s *Store) evictOldestLocked() {
	var oldest *Client
	for _, c := range s.clients {
		if oldest == nil || c.LastSeen.Before(oldest.LastSeen) {
			oldest = c
		}
	}
	if oldest != nil {
		s.removeClientLocked(oldest.ID)
	}
}

func cloneAddr(addr *net.UDPAddr) *net.UDPAddr {
	if addr == nil {
		return &net.UDPAddr{}
	}
	out := *addr
	out.IP = append(net.IP(nil), addr.IP...)
	return &out
}
