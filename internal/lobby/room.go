package lobby

import (
	"sort"

	"github.com/samber/lo"
)

// Room groups clients up to a fixed capacity.
type Room struct {
	ID       string
	Name     string
	Capacity int
	members  map[string]struct{}
}

func newRoom(id, name string, capacity int) *Room {
	return &Room{
		ID:       id,
		Name:     name,
		Capacity: capacity,
		members:  make(map[string]struct{}),
	}
}

// add inserts a member. Returns false if already present.
func (r *Room) add(clientID string) bool {
	if _, exists := r.members[clientID]; exists {
		return false
	}
	r.members[clientID] = struct{}{}
	return true
}

// remove deletes a member. Returns false if not present.
func (r *Room) remove(clientID string) bool {
	if _, exists := r.members[clientID]; !exists {
		return false
	}
	delete(r.members, clientID)
	return true
}

func (r *Room) has(clientID string) bool {
	_, ok := r.members[clientID]
	return ok
}

func (r *Room) full() bool {
	return len(r.members) >= r.Capacity
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}

// memberIDs returns member identifiers in sorted order.
func (r *Room) memberIDs() []string {
	ids := lo.Keys(r.members)
	sort.Strings(ids)
	return ids
}

// RoomInfo is the get_rooms view of a room.
type RoomInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Members  int    `json:"nb_players"`
	Capacity int    `json:"capacity"`
}

// RoomDetail is a RoomInfo plus the member identifiers.
type RoomDetail struct {
	RoomInfo
	MemberIDs []string
}

func (r *Room) info() RoomInfo {
	return RoomInfo{
		ID:       r.ID,
		Name:     r.Name,
		Members:  len(r.members),
		Capacity: r.Capacity,
	}
}
