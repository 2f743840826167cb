package smtpd

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relaysmtp/smtpd/internal/proxyproto"
	"github.com/relaysmtp/smtpd/internal/trace"
)

// Engine holds the configuration and extensibility points shared by every
// connection it serves. One Engine typically backs many concurrent
// connections; it carries no per-connection mutable state (§5: "no shared
// mutable state between connections except the immutable configuration
// object").
type Engine struct {
	opts Options

	extra     map[string]CommandFunc
	extraHelp map[string]string

	mechanisms map[string]MechanismFunc

	metrics *engineMetrics

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewEngine validates opts and returns a ready-to-use Engine.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		opts:      opts,
		extra:     map[string]CommandFunc{},
		extraHelp: map[string]string{},
		mechanisms: map[string]MechanismFunc{
			"PLAIN": builtinPlain,
			"LOGIN": builtinLogin,
		},
		metrics:  newEngineMetrics(),
		shutdown: make(chan struct{}),
	}

	if mp, ok := opts.Handler.(MechanismProvider); ok {
		for name, fn := range mp.AuthMechanisms() {
			e.mechanisms[strings.ToUpper(name)] = fn
		}
	}

	return e, nil
}

// advertisedMechanisms returns the sorted list of mechanism names that are
// currently usable: registered minus AuthExcludeMechanism.
func (e *Engine) advertisedMechanisms() []string {
	names := make([]string, 0, len(e.mechanisms))
	for name := range e.mechanisms {
		if e.opts.AuthExcludeMechanism.Has(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hasAuthBackend reports whether any authenticator is configured.
func (e *Engine) hasAuthBackend() bool {
	return e.opts.Authenticator != nil || e.opts.AuthCallback != nil
}

func (e *Engine) authenticator() Authenticator {
	if e.opts.Authenticator != nil {
		return e.opts.Authenticator
	}
	if e.opts.AuthCallback != nil {
		return legacyCallbackAuthenticator{cb: e.opts.AuthCallback}
	}
	return nil
}

// Conn represents one accepted connection and runs the per-connection
// protocol engine (C1-C7). It is exclusively owned by the goroutine that
// calls HandleConn; nothing about it is safe for concurrent use.
type Conn struct {
	engine *Engine

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	tr *trace.Trace

	session  *Session
	envelope *Envelope

	hostname string // may differ from engine.opts.Hostname after SNI adoption

	// deadline is the generous ceiling applied while reading a DATA
	// payload, so a large message doesn't trip the per-command idle
	// timeout one line at a time.
	deadline time.Time

	unrecognizedCount int
}

// Session returns the connection's session state.
func (c *Conn) Session() *Session { return c.session }

// Envelope returns the connection's in-flight envelope, creating one if
// none exists yet.
func (c *Conn) Envelope() *Envelope {
	if c.envelope == nil {
		c.envelope = newEnvelope()
	}
	return c.envelope
}

// HandleConn runs the protocol engine on nc until the client disconnects,
// the engine closes the connection (421-class errors), or a fatal
// transport error occurs. It always closes nc before returning.
func (e *Engine) HandleConn(nc net.Conn) {
	c := &Conn{
		engine:   e,
		conn:     nc,
		hostname: e.opts.Hostname,
		deadline: time.Now().Add(24 * time.Hour),
	}
	defer c.conn.Close()

	c.tr = trace.New("smtpd.Conn", safeRemoteAddr(nc))
	defer c.tr.Finish()

	c.session = newSession(nc.RemoteAddr())

	defer func() {
		if c.session.TLS != nil {
			e.metrics.tlsCount.WithLabelValues("tls").Inc()
		} else {
			e.metrics.tlsCount.WithLabelValues("plain").Inc()
		}
	}()

	c.conn.SetDeadline(time.Now().Add(e.opts.Timeout))

	if tc, ok := c.conn.(*tls.Conn); ok {
		if err := tc.Handshake(); err != nil {
			c.tr.Errorf("TLS handshake error: %v", err)
			return
		}
		cstate := tc.ConnectionState()
		c.session.TLS = &cstate
		if name := cstate.ServerName; name != "" {
			c.hostname = name
		}
	}

	c.reader = bufio.NewReader(c.conn)
	c.writer = bufio.NewWriter(c.conn)

	if e.opts.ProxyProtocolTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(e.opts.ProxyProtocolTimeout))
		src, dst, err := proxyproto.Handshake(c.reader)
		if err != nil {
			c.tr.Errorf("PROXY protocol handshake error: %v", err)
			return
		}
		if src != nil {
			c.session.Peer = src
		}
		c.session.ProxyData = &ProxyData{Source: src, Destination: dst}
		c.conn.SetDeadline(time.Now().Add(e.opts.Timeout))
	}

	c.greet()
	c.loop()
}

func safeRemoteAddr(nc net.Conn) string {
	if nc.RemoteAddr() == nil {
		return "unknown"
	}
	return nc.RemoteAddr().String()
}

func (c *Conn) greet() {
	ident := c.engine.opts.Ident
	c.writeLine("220 %s ESMTP %s", c.hostname, ident)
}

// loop is the dispatcher (C2): read, parse, gate, route, reply.
func (c *Conn) loop() {
	for {
		select {
		case <-c.engine.shutdown:
			c.writeResponse(replyf(421, "%s Service not available, closing transmission channel", c.hostname))
			return
		default:
		}

		c.conn.SetDeadline(time.Now().Add(c.engine.opts.Timeout))

		cmd, params, err := c.readCommand()
		if err != nil {
			if err == errLineTooLong {
				c.writeResponse(reply(500, "Command line too long"))
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.writeResponse(replyf(421, "%s Error: timeout exceeded", c.hostname))
				return
			}
			if err != io.EOF {
				c.tr.Errorf("read error: %v", err)
			}
			return
		}

		select {
		case <-c.engine.shutdown:
			c.writeResponse(replyf(421, "%s Service not available, closing transmission channel", c.hostname))
			return
		default:
		}

		if cmd == "AUTH" {
			c.tr.Debugf("-> AUTH <redacted>")
		} else {
			c.tr.Debugf("-> %s %s", cmd, params)
		}

		r := c.dispatch(cmd, params)
		c.session.CommandCallCounts[cmd]++
		c.engine.metrics.commandCount.WithLabelValues(cmd).Inc()

		if r.isEmpty() {
			continue
		}

		c.engine.metrics.responseCodeCount.WithLabelValues(
			strconv.Itoa(r.Code)).Inc()
		c.tr.Debugf("<- %d %v", r.Code, r.Lines)

		if err := c.writeResponse(r); err != nil {
			return
		}

		if r.Code == 221 {
			return
		}
		if r.Code == 421 {
			return
		}
	}
}

// dispatch runs the gates in §4.3 and then routes to the command handler,
// recovering from any panic per §4.8.
func (c *Conn) dispatch(cmd, params string) (r Reply) {
	defer func() {
		if exc := recover(); exc != nil {
			err := fmt.Errorf("%v", exc)
			code, msg := 0, ""
			if h, ok := c.engine.opts.Handler.(ExceptionHandler); ok {
				code, msg = h.HandleException(c.session, err)
			}
			if code == 0 {
				code, msg = 500, fmt.Sprintf("Error: (panic) %v", err)
			}
			c.tr.Errorf("recovered panic in %s: %v", cmd, err)
			r = reply(code, msg)
		}
	}()

	if lim, ok := c.engine.opts.CommandCallLimit.limitFor(cmd); ok {
		if c.session.CommandCallCounts[cmd]+1 > lim {
			return replyf(421, "%s Error: too many %s", c.hostname, cmd)
		}
	}

	if r, ok := c.checkGates(cmd); ok {
		return r
	}

	return c.route(cmd, params)
}

// checkGates applies the cross-cutting gates from §4.3 that apply before
// greeting and regardless of command-specific logic. ok is false when the
// command should proceed to routing.
func (c *Conn) checkGates(cmd string) (Reply, bool) {
	alwaysOk := map[string]bool{
		"HELO": true, "EHLO": true, "LHLO": true, "NOOP": true,
		"QUIT": true, "HELP": true, "RSET": true,
	}

	// Unknown commands skip this gate: route answers them with 500 and
	// counts them against MaxUnrecognizedCommands.
	_, isExtra := c.engine.extra[cmd]
	recognized := isExtra || map[string]bool{
		"MAIL": true, "RCPT": true, "DATA": true, "VRFY": true,
		"EXPN": true, "STARTTLS": true, "AUTH": true,
	}[cmd]
	if c.session.Hostname == "" && !alwaysOk[cmd] && recognized {
		return reply(503, "Error: send HELO first"), true
	}

	if c.engine.opts.RequireSTARTTLS && c.session.TLS == nil {
		starttlsOk := map[string]bool{
			"EHLO": true, "LHLO": true, "NOOP": true, "QUIT": true,
			"RSET": true, "STARTTLS": true,
		}
		if !starttlsOk[cmd] {
			return reply(530, "Must issue a STARTTLS command first"), true
		}
	}

	if c.engine.opts.AuthRequired && !c.session.Authenticated {
		authGated := map[string]bool{
			"HELP": true, "MAIL": true, "RCPT": true, "DATA": true,
			"VRFY": true, "EXPN": true,
		}
		if authGated[cmd] {
			return reply(530, "5.7.0 Authentication required"), true
		}
	}

	if cmd == "AUTH" {
		if c.session.Authenticated {
			return reply(503, "Already authenticated"), true
		}
		if !c.engine.opts.InsecureAuthWithoutTLS && c.session.TLS == nil {
			return reply(538,
				"5.7.11 Encryption required for requested authentication mechanism"), true
		}
	}

	return Reply{}, false
}

func (c *Conn) route(cmd, params string) Reply {
	switch cmd {
	case "HELO", "EHLO":
		if c.engine.opts.LMTP {
			return reply(500, "5.5.1 HELO/EHLO not valid in LMTP mode")
		}
		if cmd == "HELO" {
			return c.HELO(params)
		}
		return c.EHLO(params)
	case "LHLO":
		return c.LHLO(params)
	case "HELP":
		return c.HELP(params)
	case "NOOP":
		return c.NOOP(params)
	case "RSET":
		return c.RSET(params)
	case "VRFY":
		return c.VRFY(params)
	case "EXPN":
		return reply(502, "5.5.1 Command not implemented")
	case "MAIL":
		return c.MAIL(params)
	case "RCPT":
		return c.RCPT(params)
	case "DATA":
		return c.DATA(params)
	case "STARTTLS":
		return c.STARTTLS(params)
	case "AUTH":
		return c.AUTH(params)
	case "QUIT":
		code, msg := 221, "Bye"
		if h, ok := c.engine.opts.Handler.(QUITHandler); ok {
			if hc, hm := h.HandleQUIT(c.session); hc != 0 {
				code, msg = hc, hm
			}
		}
		return reply(code, msg)
	}

	if fn, ok := c.engine.extra[cmd]; ok {
		return fn(c, params)
	}

	return c.unrecognized(cmd)
}

func (c *Conn) unrecognized(cmd string) Reply {
	c.unrecognizedCount++
	if c.session.Hostname == "" && c.unrecognizedCount > c.engine.opts.MaxUnrecognizedCommands {
		return replyf(421, "%s Error: too many unrecognized commands", c.hostname)
	}
	return replyf(500, "Error: command %q not recognized", cmd)
}

// HELO implements the HELO command.
func (c *Conn) HELO(params string) Reply {
	host := strings.TrimSpace(params)
	if host == "" || strings.ContainsAny(host, " \t") {
		return reply(501, "Syntax: HELO <hostname>")
	}

	if !c.ensureASCII(host) {
		return c.strictASCIIReply()
	}

	code, msg := 250, c.hostname
	if h, ok := c.engine.opts.Handler.(HELOHandler); ok {
		if hc, hm := h.HandleHELO(c.session, host); hc != 0 {
			code, msg = hc, hm
		}
	}

	c.envelope = nil
	c.session.Hostname = host
	c.session.Extended = false

	return reply(code, msg)
}

// EHLO implements the EHLO command (§4.3).
func (c *Conn) EHLO(params string) Reply {
	host := strings.TrimSpace(params)
	if host == "" || strings.ContainsAny(host, " \t") {
		return reply(501, "Syntax: EHLO <hostname>")
	}
	if !c.ensureASCII(host) {
		return c.strictASCIIReply()
	}

	c.envelope = nil
	c.session.Hostname = host
	c.session.Extended = true

	lines := []string{c.hostname}
	lines = append(lines, fmt.Sprintf("SIZE %d", c.engine.opts.DataSizeLimit))
	lines = append(lines, "8BITMIME")
	if c.engine.opts.EnableSMTPUTF8 {
		lines = append(lines, "SMTPUTF8")
	}
	if c.engine.opts.TLSConfig != nil && c.session.TLS == nil {
		lines = append(lines, "STARTTLS")
	}
	if c.authPermissible() {
		mechs := c.engine.advertisedMechanisms()
		if len(mechs) > 0 {
			lines = append(lines, "AUTH "+strings.Join(mechs, " "))
		}
	}

	if h, ok := c.engine.opts.Handler.(EHLOHandler); ok {
		lines = h.HandleEHLO(c.session, host, lines)
	}

	lines = append(lines, "HELP")

	return Reply{Code: 250, Lines: lines}
}

// authPermissible reports whether AUTH would be accepted in the current
// TLS state, for EHLO's advertisement logic.
func (c *Conn) authPermissible() bool {
	if !c.engine.hasAuthBackend() {
		return false
	}
	if c.engine.opts.InsecureAuthWithoutTLS {
		return true
	}
	return c.session.TLS != nil
}

// HELP implements the HELP command. With an argument naming a
// RegisterCommand-registered command, it returns that command's syntax
// string if one was supplied.
func (c *Conn) HELP(params string) Reply {
	if params != "" {
		if help, ok := c.engine.extraHelp[strings.ToUpper(strings.TrimSpace(params))]; ok {
			return reply(214, "2.0.0 "+help)
		}
	}
	return reply(214, "2.0.0 See RFC 5321")
}

// NOOP implements the NOOP command.
func (c *Conn) NOOP(params string) Reply {
	code, msg := 250, "2.0.0 OK"
	if h, ok := c.engine.opts.Handler.(NOOPHandler); ok {
		if hc, hm := h.HandleNOOP(c.session, params); hc != 0 {
			code, msg = hc, hm
		}
	}
	return reply(code, msg)
}

// RSET implements the RSET command. It clears only the envelope, never
// the session, per §4.3.
func (c *Conn) RSET(params string) Reply {
	c.envelope = nil

	code, msg := 250, "2.0.0 OK"
	if h, ok := c.engine.opts.Handler.(RSETHandler); ok {
		if hc, hm := h.HandleRSET(c.session); hc != 0 {
			code, msg = hc, hm
		}
	}
	return reply(code, msg)
}

// VRFY implements the VRFY command. The default policy neither confirms
// nor denies individual addresses.
func (c *Conn) VRFY(params string) Reply {
	code, msg := 252, "Cannot VRFY user, but will accept message"
	if h, ok := c.engine.opts.Handler.(VRFYHandler); ok {
		if hc, hm := h.HandleVRFY(c.session, params); hc != 0 {
			code, msg = hc, hm
		}
	}
	return reply(code, msg)
}

// MAIL implements the MAIL command.
func (c *Conn) MAIL(params string) Reply {
	if !strings.HasPrefix(strings.ToUpper(params), "FROM:") {
		return reply(501, "Syntax: MAIL FROM:<address> [options]")
	}
	if c.session.Hostname == "" {
		return reply(503, "Error: send HELO/EHLO first")
	}
	if c.envelope != nil && c.envelope.MailFrom != "" {
		return reply(503, "Error: nested MAIL command")
	}

	rawAddr, options := splitAddrAndOptions(params[len("FROM:"):])
	if !c.ensureASCII(rawAddr) {
		return c.strictASCIIReply()
	}

	addr, _, err := parseReversePath(rawAddr)
	if err != nil {
		return reply(501, "5.1.7 Sender address malformed")
	}

	smtputf8 := false
	for _, opt := range options {
		if strings.EqualFold(opt, "SMTPUTF8") {
			smtputf8 = true
		}
	}

	e := c.Envelope()
	code, msg := 250, "2.1.5 OK"
	if h, ok := c.engine.opts.Handler.(MAILHandler); ok {
		if hc, hm := h.HandleMAIL(c.session, e, addr, options); hc != 0 {
			code, msg = hc, hm
		}
	}
	if code >= 400 {
		c.envelope = nil
		return reply(code, msg)
	}

	e.MailFrom = addr
	e.MailOptions = options
	e.SMTPUTF8 = smtputf8
	return reply(code, msg)
}

// RCPT implements the RCPT command.
func (c *Conn) RCPT(params string) Reply {
	if !strings.HasPrefix(strings.ToUpper(params), "TO:") {
		return reply(501, "Syntax: RCPT TO:<address> [options]")
	}
	if c.envelope == nil || c.envelope.MailFrom == "" {
		return reply(503, "5.5.1 Sender not yet given")
	}
	if len(c.envelope.RcptTos) > 100 {
		return reply(452, "4.5.3 Too many recipients")
	}

	rawAddr, options := splitAddrAndOptions(params[len("TO:"):])
	if !c.ensureASCII(rawAddr) {
		return c.strictASCIIReply()
	}

	e, err := mail.ParseAddress(rawAddr)
	if err != nil || e.Address == "" {
		return reply(501, "5.1.3 Malformed destination address")
	}

	env := c.Envelope()
	code, msg := 250, "2.1.5 OK"
	if h, ok := c.engine.opts.Handler.(RCPTHandler); ok {
		if hc, hm := h.HandleRCPT(c.session, env, e.Address, options); hc != 0 {
			code, msg = hc, hm
		}
	}
	if code >= 400 {
		return reply(code, msg)
	}

	env.RcptTos = append(env.RcptTos, e.Address)
	env.RcptOptions = append(env.RcptOptions, options)
	return reply(code, msg)
}

// splitAddrAndOptions splits the remainder of a MAIL/RCPT command (after
// the "FROM:"/"TO:" prefix) into the address and the trailing ESMTP
// parameters.
func splitAddrAndOptions(s string) (addr string, options []string) {
	s = strings.TrimSpace(s)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// parseReversePath accepts either the null reverse-path "<>" or a regular
// mailbox, reporting whether SMTPUTF8 characters were present.
func parseReversePath(raw string) (addr string, smtputf8 bool, err error) {
	if strings.ReplaceAll(raw, " ", "") == "<>" {
		return "<>", false, nil
	}

	e, err := mail.ParseAddress(raw)
	if err != nil || e.Address == "" {
		return "", false, fmt.Errorf("malformed address")
	}

	for _, r := range e.Address {
		if r > 127 {
			smtputf8 = true
			break
		}
	}

	return e.Address, smtputf8, nil
}

// ensureASCII enforces the "500 strict ASCII required" policy from §9's
// resolved open question, unless SMTPUTF8 is enabled.
func (c *Conn) ensureASCII(s string) bool {
	if c.engine.opts.EnableSMTPUTF8 {
		return true
	}
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

func (c *Conn) strictASCIIReply() Reply {
	return reply(500, "5.5.2 strict ASCII required")
}

// DATA implements the DATA command, including the LMTP per-recipient reply
// variant (§4.4, lmtp.go).
func (c *Conn) DATA(params string) Reply {
	if c.envelope == nil || c.envelope.MailFrom == "" {
		return reply(503, "5.5.1 Sender not yet given")
	}
	if len(c.envelope.RcptTos) == 0 {
		return reply(503, "5.5.1 Need an address to send to")
	}

	if err := c.writeResponse(reply(354, "End data with <CR><LF>.<CR><LF>")); err != nil {
		return noReply
	}

	c.conn.SetDeadline(c.deadline)

	content, original, err := readDataPayload(c.reader, c.engine.opts.DataSizeLimit, defaultLineLengthLimit)
	if err != nil {
		switch err {
		case errLineTooLong:
			r := reply(500, "Line too long.")
			c.finishData(r)
			return noReply
		case errMessageTooLarge:
			r := reply(552, "Error: Too much mail data")
			c.finishData(r)
			return noReply
		default:
			c.tr.Errorf("error reading DATA: %v", err)
			return noReply
		}
	}

	e := c.envelope
	e.Content = content
	e.OriginalContent = original
	if c.engine.opts.DecodeData {
		e.Text = decodeContent(content, c.engine.opts.EnableSMTPUTF8 || e.SMTPUTF8)
	}

	if c.engine.opts.LMTP {
		c.finishDataLMTP(e)
		return noReply
	}

	code, msg := 250, "2.0.0 OK"
	if h, ok := c.engine.opts.Handler.(DATAHandler); ok {
		if hc, hm := h.HandleDATA(c.session, e); hc != 0 {
			code, msg = hc, hm
		}
	}
	c.finishData(reply(code, msg))
	return noReply
}

// finishData writes r and clears the envelope, matching §4.4's "the
// envelope is cleared afterward regardless of success."
func (c *Conn) finishData(r Reply) {
	c.envelope = nil
	c.engine.metrics.responseCodeCount.WithLabelValues(
		strconv.Itoa(r.Code)).Inc()
	c.writeResponse(r)
}

// decodeContent decodes a DATA payload to text per Options.DecodeData: as
// UTF-8 if utf8 is true, else as Latin-1 (each byte is one rune), which is
// this engine's stand-in for the source's ASCII-with-surrogateescape
// behavior -- Go has no native surrogateescape codec, and Latin-1
// decoding is lossless for arbitrary bytes the same way surrogateescape
// is, which is the property that matters here.
func decodeContent(b []byte, utf8 bool) string {
	if utf8 {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func (c *Conn) readCommand() (cmd, params string, err error) {
	line, err := readLimitedLine(c.reader, defaultLineLengthLimit)
	if err != nil {
		return "", "", err
	}

	sp := strings.SplitN(line, " ", 2)
	cmd = strings.ToUpper(sp[0])
	if len(sp) > 1 {
		params = sp[1]
	}
	return cmd, params, nil
}

func (c *Conn) writeLine(format string, a ...interface{}) {
	fmt.Fprintf(c.writer, format+"\r\n", a...)
	c.writer.Flush()
}

func (c *Conn) writeResponse(r Reply) error {
	defer c.writer.Flush()
	return r.writeTo(c.writer)
}
