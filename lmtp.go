package smtpd

import "strconv"

// LHLO implements the LHLO command (RFC 2033), the LMTP equivalent of
// EHLO. It shares EHLO's extension-advertisement logic.
func (c *Conn) LHLO(params string) Reply {
	if !c.engine.opts.LMTP {
		return reply(500, "5.5.1 LHLO only valid in LMTP mode")
	}
	return c.EHLO(params)
}

// finishDataLMTP writes one reply per recipient, per RFC 2033 §4.2, instead
// of the single reply a DATAHandler would otherwise produce. The same
// DATAHandler hook is consulted per recipient, so an application that
// wants per-recipient accept/reject semantics gets one call per address;
// an application indifferent to LMTP's fan-out can ignore the
// distinction entirely by always returning the same reply.
func (c *Conn) finishDataLMTP(e *Envelope) {
	defer func() { c.envelope = nil }()

	h, ok := c.engine.opts.Handler.(DATAHandler)

	for _, rcpt := range e.RcptTos {
		code, msg := 250, "2.0.0 OK"
		if ok {
			perRecipient := *e
			perRecipient.RcptTos = []string{rcpt}
			if hc, hm := h.HandleDATA(c.session, &perRecipient); hc != 0 {
				code, msg = hc, hm
			}
		}
		r := reply(code, msg)
		c.engine.metrics.responseCodeCount.WithLabelValues(strconv.Itoa(code)).Inc()
		if err := c.writeResponse(r); err != nil {
			return
		}
	}
}
