package p2p

// Outcome is the result of dispatching one inbound message on an active
// session.
type Outcome struct {
	// Reply is the message to transmit back to the peer, nil when the
	// inbound message calls for none.
	Reply Message

	// Hangup is set when the peer requested a graceful disconnect. It
	// carries the reason the peer announced; the session returned alongside
	// has already been reset.
	Hangup *DiscReason
}

// Handle dispatches one inbound message against the session and returns the
// outcome together with the session to use from here on.
//
// Until the session is active, every message fails with
// ErrHandshakeIncomplete and the session comes back unchanged. This is the
// single gate that protocol traffic has to pass: nothing is acted upon before
// both greetings are exchanged and at least one capability is shared.
//
// On an active session, dispatch never fails. A keepalive ping yields its
// pong reply, a disconnect resets the session and surfaces the peer's reason,
// and everything else passes through untouched for upper layers to consume.
func (s Session) Handle(msg Message) (Outcome, Session, error) {
	if !s.Active() {
		return Outcome{}, s, ErrHandshakeIncomplete
	}
	switch m := msg.(type) {
	case Ping:
		return Outcome{Reply: Pong{}}, s, nil
	case Disc:
		reason := m.Reason
		return Outcome{Hangup: &reason}, s.Disconnect(), nil
	default:
		// Unrecognized message kinds are deliberately left alone so new
		// base protocol codes can be introduced without breaking old nodes.
		return Outcome{}, s, nil
	}
}
