package smtpd

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/relaysmtp/smtpd/internal/normalize"
)

// ErrAuthAborted is returned by ChallengeAuth when the peer cancels a SASL
// exchange by sending a lone "*" in response to a challenge (§4.5).
var ErrAuthAborted = errors.New("smtpd: auth aborted by peer")

// PlainCredentials is the decoded form of a PLAIN or LOGIN response:
// authzid may be empty, per RFC 4954 §4.1.
type PlainCredentials struct {
	AuthzID string
	AuthcID string
	Password string
}

// AuthResult is what an Authenticator returns for one AUTH attempt.
type AuthResult struct {
	// Success marks the attempt as having authenticated the session.
	Success bool

	// Handled is carried for Authenticators that report having produced
	// their own reply. The engine does not act on it: every failed attempt
	// gets a 535 (or 421) reply written by the engine itself.
	Handled bool

	// Message is the reply text sent when Success is false, whatever
	// Handled says; if empty, "5.7.8 Authentication failed" is sent.
	Message string

	// AuthData is stored on the session when Success is true; it is
	// opaque to the engine.
	AuthData interface{}
}

// Authenticator validates AUTH attempts. data is *PlainCredentials for the
// built-in PLAIN/LOGIN mechanisms, or whatever a MechanismFunc produced for
// a custom one.
type Authenticator interface {
	Authenticate(s *Session, e *Envelope, mechanism string, data interface{}) AuthResult
}

// AuthenticatorFunc adapts a plain function to the Authenticator interface.
type AuthenticatorFunc func(s *Session, e *Envelope, mechanism string, data interface{}) AuthResult

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(s *Session, e *Envelope, mechanism string, data interface{}) AuthResult {
	return f(s, e, mechanism, data)
}

// legacyCallbackAuthenticator adapts the deprecated (mechanism, login,
// password) -> bool shape into an Authenticator, for Options.AuthCallback.
type legacyCallbackAuthenticator struct {
	cb func(mechanism, login, password string) bool
}

func (l legacyCallbackAuthenticator) Authenticate(_ *Session, _ *Envelope, mechanism string, data interface{}) AuthResult {
	creds, ok := data.(*PlainCredentials)
	if !ok {
		return AuthResult{Success: false, Message: "5.5.1 Mechanism not supported by this authenticator"}
	}

	login := creds.AuthcID
	if creds.AuthzID != "" {
		login = creds.AuthzID
	}

	if l.cb(mechanism, login, creds.Password) {
		return AuthResult{Success: true, AuthData: creds}
	}
	return AuthResult{Success: false, Message: "5.7.8 Authentication failed"}
}

// AuthLoginUsernameChallenge and AuthLoginPasswordChallenge are the
// configurable prompts used by the built-in LOGIN mechanism (§4.5). They
// are base64-encoded by ChallengeAuth before being sent on the wire.
var (
	AuthLoginUsernameChallenge = "Username"
	AuthLoginPasswordChallenge = "Password"
)

// decodePlainResponse decodes a PLAIN-mechanism response of the form
// "authzid\0authcid\0password", base64-encoded on the wire (used for the
// initial response carried on the AUTH command line itself).
func decodePlainResponse(b64 string) (*PlainCredentials, error) {
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return parsePlainFields(string(buf))
}

// parsePlainFields splits an already-decoded PLAIN response into its three
// NUL-separated fields. Used directly for responses obtained via
// ChallengeAuth, which has already base64-decoded them.
func parsePlainFields(raw string) (*PlainCredentials, error) {
	parts := strings.SplitN(raw, "\x00", 3)
	if len(parts) != 3 {
		return nil, errors.New("smtpd: malformed PLAIN response")
	}

	return &PlainCredentials{
		AuthzID:  parts[0],
		AuthcID:  parts[1],
		Password: parts[2],
	}, nil
}

// normalizeCredentials applies PRECIS/IDNA normalization to the decoded
// identity's username and domain, so callers can compare case- and
// encoding-insensitively.
func normalizeCredentials(c *PlainCredentials) (*PlainCredentials, error) {
	authcid := c.AuthcID
	if idx := strings.LastIndex(authcid, "@"); idx >= 0 {
		user, domain := authcid[:idx], authcid[idx+1:]
		user, err := normalize.User(user)
		if err != nil {
			return c, err
		}
		domain, err = normalize.Domain(domain)
		if err != nil {
			return c, err
		}
		authcid = user + "@" + domain
	} else {
		user, err := normalize.User(authcid)
		if err != nil {
			return c, err
		}
		authcid = user
	}

	norm := *c
	norm.AuthcID = authcid
	return &norm, nil
}
