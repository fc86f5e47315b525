package p2p

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Session tracks the greeting exchange on a single connection. It is a plain
// value: every transition returns a new Session and the previous one stays
// untouched, so the caller can hold on to intermediate states. A nil greeting
// pointer means that side of the exchange has not happened yet.
//
// Each connection owns exactly one Session and must serialize access to it.
// The connection handler's read loop is the single writer; Sessions are never
// shared between connections.
type Session struct {
	sent     *Hello // greeting this node transmitted, nil until sent
	received *Hello // greeting accepted from the peer, nil until received
}

// NewSession returns a session with neither greeting exchanged.
func NewSession() Session {
	return Session{}
}

// MarkSent records the greeting transmitted to the peer.
func (s Session) MarkSent(h *Hello) Session {
	s.sent = h
	return s
}

// MarkReceived records the greeting accepted from the peer.
func (s Session) MarkReceived(h *Hello) Session {
	s.received = h
	return s
}

// Disconnect clears the negotiated state on both sides. The transport
// connection may well outlive this; only the session semantics are reset.
// Disconnecting an already-idle session is a no-op.
func (s Session) Disconnect() Session {
	return Session{}
}

// LocalHello returns the greeting this node sent, or nil.
func (s Session) LocalHello() *Hello { return s.sent }

// RemoteHello returns the greeting received from the peer, or nil.
func (s Session) RemoteHello() *Hello { return s.received }

// Active reports whether the session may carry protocol traffic: both
// greetings have been exchanged and the capability sets overlap.
func (s Session) Active() bool {
	if s.received == nil {
		return false
	}
	if s.sent == nil {
		return false
	}
	return s.Compatible()
}

// Compatible reports whether the two sides advertised at least one common
// capability. A capability only matches on exact name and version; announcing
// different versions of the same sub-protocol does not count. Sessions with
// either greeting missing are not compatible.
func (s Session) Compatible() bool {
	if s.sent == nil || s.received == nil {
		return false
	}
	ours := mapset.NewThreadUnsafeSet(s.sent.Caps...)
	theirs := mapset.NewThreadUnsafeSet(s.received.Caps...)
	return ours.Intersect(theirs).Cardinality() > 0
}

// SharedCaps returns the capabilities both sides advertised, in canonical
// order. Empty for sessions that are not compatible.
func (s Session) SharedCaps() []Cap {
	if s.sent == nil || s.received == nil {
		return nil
	}
	ours := mapset.NewThreadUnsafeSet(s.sent.Caps...)
	theirs := mapset.NewThreadUnsafeSet(s.received.Caps...)
	shared := ours.Intersect(theirs).ToSlice()
	sort.Sort(capsByNameAndVersion(shared))
	return shared
}
