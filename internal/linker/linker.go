// Package linker correlates game identifiers with relay session identifiers.
//
// An outbound call is requested for a game, and the relay connection for that
// call arrives later under a session id the game never saw. The Linker joins
// the two: a game is marked awaiting when its call is placed, and each inbound
// setup event claims the oldest awaiting game. A setup that names its game
// links that game directly, ahead of the oldest-first claim.
package linker

import (
	"container/list"
	"context"
	"sync"
)

// Link is the association state of one game.
type Link struct {
	GameID string
	// SessionID is empty while the game is awaiting its session.
	SessionID string
}

// Linked reports whether the game has been joined to a session.
func (l Link) Linked() bool {
	return l.SessionID != ""
}

// Linker maps game ids to either "awaiting session" or a session id.
// All methods are safe for concurrent use.
//
// Invariant: an entry transitions from awaiting to linked at most once;
// only MarkAwaiting resets it.
// Invariant: order holds every entry exactly once, least-recently-marked first.
type Linker struct {
	mu      sync.Mutex
	order   *list.List               // of *Link, in mark order
	entries map[string]*list.Element // gameID → element in order
}

// New creates an empty Linker.
func New() *Linker {
	return &Linker{
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// MarkAwaiting records that a call was placed for gameID and the game now
// waits for its session. An existing entry is reset to awaiting and becomes
// the most-recently-marked.
//
// Precondition: gameID must be non-empty.
func (l *Linker) MarkAwaiting(gameID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.entries[gameID]; ok {
		l.order.Remove(el)
	}
	l.entries[gameID] = l.order.PushBack(&Link{GameID: gameID})
}

// MarkAwaitingUnlessDone marks gameID awaiting only while ctx is live, and
// reports whether it did. ctx is checked under the linker lock, so a caller
// that cancels ctx and then calls Remove never leaves the game behind.
//
// Precondition: gameID must be non-empty.
func (l *Linker) MarkAwaitingUnlessDone(ctx context.Context, gameID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	if el, ok := l.entries[gameID]; ok {
		l.order.Remove(el)
	}
	l.entries[gameID] = l.order.PushBack(&Link{GameID: gameID})
	return true
}

// ResolveFirstAwaiting links sessionID to the least-recently-marked awaiting
// game and returns that game's id. With no awaiting game it returns ("", false)
// and changes nothing.
//
// Precondition: sessionID must be non-empty.
func (l *Linker) ResolveFirstAwaiting(sessionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for el := l.order.Front(); el != nil; el = el.Next() {
		link := el.Value.(*Link)
		if !link.Linked() {
			link.SessionID = sessionID
			return link.GameID, true
		}
	}
	return "", false
}

// ResolveAwaiting links sessionID to gameID when gameID is present and still
// awaiting. Used when the setup event echoes the game id it was placed for.
//
// Postcondition: Returns true iff the entry transitioned to linked.
func (l *Linker) ResolveAwaiting(gameID, sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.entries[gameID]
	if !ok {
		return false
	}
	link := el.Value.(*Link)
	if link.Linked() {
		return false
	}
	link.SessionID = sessionID
	return true
}

// Resolve returns the session linked to gameID. It returns ("", false) when
// the game is absent or still awaiting.
func (l *Linker) Resolve(gameID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.entries[gameID]
	if !ok {
		return "", false
	}
	link := el.Value.(*Link)
	if !link.Linked() {
		return "", false
	}
	return link.SessionID, true
}

// Get returns a copy of the link state for gameID.
func (l *Linker) Get(gameID string) (Link, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.entries[gameID]
	if !ok {
		return Link{}, false
	}
	return *el.Value.(*Link), true
}

// Remove forgets gameID. Removing an absent game is a no-op.
func (l *Linker) Remove(gameID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.entries[gameID]; ok {
		l.order.Remove(el)
		delete(l.entries, gameID)
	}
}

// Awaiting returns the ids of all awaiting games, least-recently-marked first.
func (l *Linker) Awaiting() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ids []string
	for el := l.order.Front(); el != nil; el = el.Next() {
		if link := el.Value.(*Link); !link.Linked() {
			ids = append(ids, link.GameID)
		}
	}
	return ids
}

// Len returns the number of tracked games, linked or awaiting.
func (l *Linker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
