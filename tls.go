package smtpd

import (
	"bufio"
	"crypto/tls"

	"github.com/relaysmtp/smtpd/internal/tlsconst"
)

// STARTTLS implements the STARTTLS command (§4.6).
func (c *Conn) STARTTLS(params string) Reply {
	if c.engine.opts.TLSConfig == nil {
		return reply(502, "5.5.1 STARTTLS not supported")
	}
	if c.session.TLS != nil {
		return reply(503, "5.5.1 Already using TLS")
	}
	if params != "" {
		return reply(501, "Syntax: STARTTLS")
	}

	if h, ok := c.engine.opts.Handler.(STARTTLSHandler); ok {
		h.HandleSTARTTLS(c.session)
	}

	if err := c.writeResponse(reply(220, "Ready to start TLS")); err != nil {
		return noReply
	}

	tlsConn := tls.Server(c.conn, c.engine.opts.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		c.tr.Errorf("STARTTLS handshake error: %v", err)
		c.conn.Close()
		return noReply
	}

	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)

	cstate := tlsConn.ConnectionState()
	c.session.TLS = &cstate
	if name := cstate.ServerName; name != "" {
		c.hostname = name
	}
	c.tr.Debugf("STARTTLS negotiated %s %s",
		tlsconst.VersionName(cstate.Version), tlsconst.CipherSuiteName(cstate.CipherSuite))

	c.session.resetForTLS()
	c.envelope = nil

	return noReply
}
