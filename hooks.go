package smtpd

// Handler is the application-provided sink for protocol checkpoint
// callbacks. It carries no methods of its own: the engine discovers which
// checkpoints an application cares about via type assertions against the
// small interfaces below, the same way it discovers auth_<MECH> mechanism
// extensions. A Handler with no done work is free to be an empty struct;
// most applications embed BaseHandler and override only the hooks they
// need.
type Handler interface{}

// A hook's (code, msg) return follows the same shape as code==0 meaning
// "no opinion, use the engine's default reply for this checkpoint" (the
// static-typed equivalent of the MISSING sentinel in §4.7).

// HELOHandler is invoked after syntactic validation of HELO, before
// session state is updated. EHLO and LHLO use EHLOHandler instead.
type HELOHandler interface {
	HandleHELO(s *Session, hostname string) (code int, msg string)
}

// EHLOHandler is invoked with the engine's tentative EHLO response lines,
// in order, before the terminating "250 HELP" is appended. It may rewrite
// or append to the slice.
type EHLOHandler interface {
	HandleEHLO(s *Session, hostname string, responses []string) []string
}

// NOOPHandler is invoked on NOOP.
type NOOPHandler interface {
	HandleNOOP(s *Session, arg string) (code int, msg string)
}

// QUITHandler is invoked just before the connection closes in response to
// QUIT.
type QUITHandler interface {
	HandleQUIT(s *Session) (code int, msg string)
}

// VRFYHandler is invoked on VRFY.
type VRFYHandler interface {
	HandleVRFY(s *Session, address string) (code int, msg string)
}

// MAILHandler is invoked after MAIL FROM has been parsed, before it is
// committed to the envelope.
type MAILHandler interface {
	HandleMAIL(s *Session, e *Envelope, address string, options []string) (code int, msg string)
}

// RCPTHandler is invoked after RCPT TO has been parsed, before it is
// appended to the envelope.
type RCPTHandler interface {
	HandleRCPT(s *Session, e *Envelope, address string, options []string) (code int, msg string)
}

// RSETHandler is invoked on RSET, after the envelope has been cleared.
type RSETHandler interface {
	HandleRSET(s *Session) (code int, msg string)
}

// DATAHandler is invoked after the payload has been fully read into the
// envelope. Its reply becomes the final response to DATA (outside LMTP
// mode, where every recipient gets its own reply instead; see lmtp.go).
type DATAHandler interface {
	HandleDATA(s *Session, e *Envelope) (code int, msg string)
}

// STARTTLSHandler is invoked just before the TLS handshake begins. It
// cannot refuse the upgrade; it exists for observability and side effects.
type STARTTLSHandler interface {
	HandleSTARTTLS(s *Session)
}

// AUTHHandler allows an application to fully override AUTH command
// handling. If handled is false, the engine continues with its built-in
// PLAIN/LOGIN/mechanism dispatch.
type AUTHHandler interface {
	HandleAUTH(s *Session, args string) (handled bool, code int, msg string)
}

// ExceptionHandler is invoked when a command handler panics. The engine
// recovers the panic, calls this hook if present, and continues the
// connection with the returned reply (or the default 500 if code is 0).
type ExceptionHandler interface {
	HandleException(s *Session, exc error) (code int, msg string)
}

// Challenger is handed to a mechanism function (see MechanismProvider) so
// it can drive a SASL exchange without reaching into engine internals.
type Challenger interface {
	// ChallengeAuth base64-encodes prompt, sends it as a 334 reply, and
	// reads one client line. If the client sends "*" the exchange was
	// aborted by the peer and ErrAuthAborted is returned. Otherwise the
	// line is base64-decoded; decoding errors are returned as-is.
	ChallengeAuth(prompt string) (string, error)
}

// MechanismFunc drives one AUTH mechanism exchange, given the raw
// arguments that followed "AUTH <MECH>" on the wire (which may be empty).
// A non-zero code short-circuits with that reply instead of the engine's
// success/failure handling; a zero code with ok=true is the normal success
// path.
type MechanismFunc func(ch Challenger, args string) (ok bool, authData interface{}, code int, msg string)

// MechanismProvider lets an application register additional AUTH
// mechanisms beyond the built-in PLAIN and LOGIN.
type MechanismProvider interface {
	AuthMechanisms() map[string]MechanismFunc
}

// BaseHandler implements every hook interface above with a "no opinion"
// (code 0) default. Applications embed it and override only the hooks they
// actually need, instead of implementing the full surface.
type BaseHandler struct{}

func (BaseHandler) HandleHELO(*Session, string) (int, string) { return 0, "" }

func (BaseHandler) HandleEHLO(_ *Session, _ string, responses []string) []string {
	return responses
}

func (BaseHandler) HandleNOOP(*Session, string) (int, string)               { return 0, "" }
func (BaseHandler) HandleQUIT(*Session) (int, string)                       { return 0, "" }
func (BaseHandler) HandleVRFY(*Session, string) (int, string)               { return 0, "" }
func (BaseHandler) HandleRSET(*Session) (int, string)                       { return 0, "" }
func (BaseHandler) HandleDATA(*Session, *Envelope) (int, string)            { return 0, "" }
func (BaseHandler) HandleSTARTTLS(*Session)                                 {}
func (BaseHandler) HandleException(*Session, error) (int, string)           { return 0, "" }

func (BaseHandler) HandleMAIL(*Session, *Envelope, string, []string) (int, string) {
	return 0, ""
}

func (BaseHandler) HandleRCPT(*Session, *Envelope, string, []string) (int, string) {
	return 0, ""
}

func (BaseHandler) HandleAUTH(*Session, string) (bool, int, string) {
	return false, 0, ""
}
