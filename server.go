package smtpd

import (
	"crypto/tls"
	"net"
)

// Serve accepts connections on l and runs the protocol engine on each one,
// until l.Accept returns an error (typically because l was closed). It
// does not return until that happens.
//
// This is a convenience wrapper only: the listener lifecycle, reload
// scheduling, and multi-address fan-out a production server needs are the
// embedding application's responsibility, not this engine's.
func (e *Engine) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go e.HandleConn(conn)
	}
}

// ServeTLS wraps l so every accepted connection begins its life already
// inside a TLS handshake (the "always-on TLS" submission-port pattern),
// rather than starting plaintext and upgrading via STARTTLS.
func (e *Engine) ServeTLS(l net.Listener, config *tls.Config) error {
	return e.Serve(tls.NewListener(l, config))
}

// Shutdown tells every Conn.loop running on e to stop at its next command
// boundary: each in-flight connection replies 421 Service not available and
// closes, rather than being cut off mid-command. It does not close any
// listener passed to Serve, and it does not wait for connections to finish;
// callers that need that should track connections themselves. Safe to call
// more than once.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() { close(e.shutdown) })
}
