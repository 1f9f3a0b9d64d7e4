package session

// Registry maps live connections to client identifiers and back.
//
// Identifiers are caller supplied and not required to be unique. When two
// connections claim the same identifier the newer one wins the
// identifier -> connection side; the older connection keeps its own entry.
type Registry[C comparable] struct {
	byConn map[C]string
	byID   map[string]C
}

// NewRegistry creates an empty registry.
func NewRegistry[C comparable]() *Registry[C] {
	return &Registry[C]{
		byConn: make(map[C]string),
		byID:   make(map[string]C),
	}
}

// Register binds conn to id. Returns false if conn is already registered,
// in which case nothing changes.
func (r *Registry[C]) Register(conn C, id string) bool {
	if _, ok := r.byConn[conn]; ok {
		return false
	}
	r.byConn[conn] = id
	r.byID[id] = conn
	return true
}

// Lookup resolves an identifier to its connection.
func (r *Registry[C]) Lookup(id string) (C, bool) {
	conn, ok := r.byID[id]
	return conn, ok
}

// IdentifierOf returns the identifier conn registered with.
func (r *Registry[C]) IdentifierOf(conn C) (string, bool) {
	id, ok := r.byConn[conn]
	return id, ok
}

// Unregister removes conn and returns the identifier it held. The
// identifier -> connection entry is only removed while it still points at
// conn, so a newer connection that reused the identifier stays reachable.
func (r *Registry[C]) Unregister(conn C) (string, bool) {
	id, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn)
	if owner, ok := r.byID[id]; ok && owner == conn {
		delete(r.byID, id)
	}
	return id, true
}

// Owns reports whether id currently resolves to conn.
func (r *Registry[C]) Owns(conn C, id string) bool {
	owner, ok := r.byID[id]
	return ok && owner == conn
}

// Len returns the number of registered connections.
func (r *Registry[C]) Len() int {
	return len(r.byConn)
}
