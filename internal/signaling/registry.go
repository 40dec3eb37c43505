package signaling

// Registry owns the process-wide mapping of session keys to rooms. It
// is constructed once at startup and injected into the hub; only the
// hub goroutine mutates it, which serializes all room state without
// locks.
type Registry struct {
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// EnsureRoom returns the room for a session key, creating it with
// empty state when it does not exist yet. Idempotent.
func (g *Registry) EnsureRoom(sessionKey string) *Room {
	if room, ok := g.rooms[sessionKey]; ok {
		return room
	}
	room := newRoom(sessionKey)
	g.rooms[sessionKey] = room
	return room
}

// Get looks up a room without creating it.
func (g *Registry) Get(sessionKey string) (*Room, bool) {
	room, ok := g.rooms[sessionKey]
	return room, ok
}

// DestroyRoomIfEmpty removes the room once its participant count is
// zero. It never removes a non-empty room and is safe to call for
// unknown keys or redundantly. Reports whether a room was removed.
func (g *Registry) DestroyRoomIfEmpty(sessionKey string) bool {
	room, ok := g.rooms[sessionKey]
	if !ok || !room.Empty() {
		return false
	}
	delete(g.rooms, sessionKey)
	return true
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	return len(g.rooms)
}
