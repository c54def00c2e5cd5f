// Package registry tracks live client connections and the rooms they have
// joined.
//
// A room has no lifecycle of its own: it exists while at least one
// connection references it and disappears with its last member. The
// registry never emits notifications; callers read the result of each
// mutation and decide who to tell.
package registry

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrUnknownConnection   = errors.New("unknown connection")
)

// Registry is the authoritative membership map. The zero value is not
// usable; create one with New.
type Registry struct {
	mu sync.Mutex

	// conns maps a connection ID to the set of rooms it is in.
	conns map[string]map[string]struct{}

	// rooms maps a room ID to its member set. A room is present only while
	// its member set is non-empty.
	rooms map[string]map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Register records a new connection with no room memberships.
func (r *Registry) Register(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return ErrDuplicateConnection
	}
	r.conns[connID] = make(map[string]struct{})
	return nil
}

// IsRegistered reports whether connID is a live connection.
func (r *Registry) IsRegistered(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[connID]
	return ok
}

// Join adds connID to roomID, creating the room if needed. joined is false
// when the connection was already a member.
func (r *Registry) Join(connID, roomID string) (joined bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	memberOf, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if _, ok := memberOf[roomID]; ok {
		return false, nil
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}
	memberOf[roomID] = struct{}{}
	return true, nil
}

// MembersOf returns the current members of roomID in sorted order. An
// unknown or emptied room yields an empty slice.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.rooms[roomID], "")
}

// OthersIn is MembersOf without connID.
func (r *Registry) OthersIn(roomID, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.rooms[roomID], connID)
}

// RoomsOf returns the rooms connID has joined, sorted.
func (r *Registry) RoomsOf(connID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	memberOf, ok := r.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return sortedKeys(memberOf, ""), nil
}

// LeaveAll removes connID from every room, drops rooms left empty and
// forgets the connection. It returns the rooms the connection was removed
// from. Calling it for a connection with no rooms, or one that is not
// registered, returns an empty slice.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	memberOf, ok := r.conns[connID]
	if !ok {
		return []string{}
	}
	delete(r.conns, connID)

	left := sortedKeys(memberOf, "")
	for _, roomID := range left {
		members := r.rooms[roomID]
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return left
}

// Snapshot returns the member count of every live room.
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.rooms))
	for roomID, members := range r.rooms {
		out[roomID] = len(members)
	}
	return out
}

// Connections returns the number of registered connections.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func sortedKeys(set map[string]struct{}, exclude string) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != exclude {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
