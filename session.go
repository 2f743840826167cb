package smtpd

import (
	"crypto/tls"
	"net"
)

// Session is the per-connection state that outlives individual messages. It
// is created when a connection is accepted and destroyed when it closes.
type Session struct {
	// Peer is the remote address of the connection, or the address
	// reported by a PROXY protocol preamble if one was used.
	Peer net.Addr

	// Hostname is the domain the client announced via HELO/EHLO/LHLO.
	// Empty until the first successful greeting.
	Hostname string

	// Extended is true once EHLO (as opposed to HELO) has been seen.
	Extended bool

	// TLS describes the current TLS connection state, or nil if the
	// session is not (yet) using TLS.
	TLS *tls.ConnectionState

	// Authenticated is true once an AUTH exchange has completed
	// successfully.
	Authenticated bool

	// AuthData is the opaque value returned by a successful Authenticator
	// call. LoginData is a legacy alias kept for callers that migrated
	// from a login/password-shaped authenticator; both name the same
	// value.
	AuthData  interface{}
	LoginData interface{}

	// ProxyData is the address pair decoded from a PROXY protocol v2
	// preamble, if proxy protocol support was enabled and a preamble was
	// received.
	ProxyData *ProxyData

	// CommandCallCounts counts invocations of each command keyword this
	// session.
	CommandCallCounts map[string]int

	// FailCounts counts failures by category (e.g. "AUTH") this session.
	FailCounts map[string]int

	authFailures int
}

// ProxyData is the address information carried by a PROXY protocol v2
// preamble.
type ProxyData struct {
	Source      net.Addr
	Destination net.Addr
}

func newSession(peer net.Addr) *Session {
	return &Session{
		Peer:              peer,
		CommandCallCounts: map[string]int{},
		FailCounts:        map[string]int{},
	}
}

// resetForTLS clears authentication and greeting state after a successful
// STARTTLS upgrade, per §4.6: the client must start over as if it were a
// new connection.
func (s *Session) resetForTLS() {
	s.Hostname = ""
	s.Extended = false
	s.Authenticated = false
	s.AuthData = nil
	s.LoginData = nil
	s.authFailures = 0
}
