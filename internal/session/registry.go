// Package session tracks live relay connections by their provider-assigned
// session identifier.
package session

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Conn is a live duplex connection that can carry outbound frames.
type Conn interface {
	// ID returns the local connection identifier (not the provider session id).
	ID() string
	// Send writes one outbound frame.
	Send(frame any) error
	// IsOpen reports whether the connection can still accept frames.
	IsOpen() bool
}

// Registry maps session ids to live connections.
// All methods are safe for concurrent use and O(1) expected, except Sweep.
type Registry struct {
	conns cmap.ConcurrentMap[string, Conn]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: cmap.New[Conn]()}
}

// Register stores conn under sessionID, replacing any previous entry.
//
// Precondition: sessionID must be non-empty; conn must be non-nil.
func (r *Registry) Register(sessionID string, conn Conn) {
	r.conns.Set(sessionID, conn)
}

// Lookup returns the connection registered under sessionID.
//
// Postcondition: Returns (conn, true) if found, or (nil, false) otherwise.
func (r *Registry) Lookup(sessionID string) (Conn, bool) {
	return r.conns.Get(sessionID)
}

// Remove deletes the entry for sessionID, if any.
func (r *Registry) Remove(sessionID string) {
	r.conns.Remove(sessionID)
}

// RemoveIf deletes the entry for sessionID only while it still refers to conn.
// A connection that was overwritten by a newer one with the same session id
// therefore cannot evict its successor when it closes.
//
// Postcondition: Returns true iff an entry was removed.
func (r *Registry) RemoveIf(sessionID string, conn Conn) bool {
	return r.conns.RemoveCb(sessionID, func(_ string, current Conn, exists bool) bool {
		return exists && current == conn
	})
}

// Sweep removes every entry whose connection is no longer open and returns
// how many were removed. It catches connections whose close was never observed.
func (r *Registry) Sweep() int {
	var stale []string
	for item := range r.conns.IterBuffered() {
		if !item.Val.IsOpen() {
			stale = append(stale, item.Key)
		}
	}
	removed := 0
	for _, sessionID := range stale {
		if r.conns.RemoveCb(sessionID, func(_ string, current Conn, exists bool) bool {
			return exists && !current.IsOpen()
		}) {
			removed++
		}
	}
	return removed
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	return r.conns.Count()
}
