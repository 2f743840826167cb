package smtpd

import (
	"encoding/base64"
	"strings"
)

// AUTH implements the AUTH command (§4.5). The TLS/already-authenticated
// gates have already run by the time this is reached; see checkGates.
func (c *Conn) AUTH(params string) Reply {
	if h, ok := c.engine.opts.Handler.(AUTHHandler); ok {
		if handled, code, msg := h.HandleAUTH(c.session, params); handled {
			if code == 0 {
				code, msg = 500, "Error: internal error"
			}
			return reply(code, msg)
		}
	}

	fields := strings.SplitN(strings.TrimSpace(params), " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return reply(501, "Syntax: AUTH <mechanism> [initial-response]")
	}
	mech := strings.ToUpper(fields[0])
	var initial string
	if len(fields) > 1 {
		initial = fields[1]
	}

	if c.engine.opts.AuthExcludeMechanism.Has(mech) {
		return reply(504, "5.5.4 Unrecognized authentication type")
	}
	fn, ok := c.engine.mechanisms[mech]
	if !ok {
		return reply(504, "5.5.4 Unrecognized authentication type")
	}

	ok, data, code, msg := fn(c, initial)
	if code != 0 {
		return reply(code, msg)
	}
	if !ok {
		return c.authFailed(mech, "5.7.8 Authentication failed")
	}

	authr := c.engine.authenticator()
	if authr == nil {
		return c.authFailed(mech, "5.5.1 Authentication not configured")
	}

	result := authr.Authenticate(c.session, c.Envelope(), mech, data)
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "5.7.8 Authentication failed"
		}
		return c.authFailed(mech, msg)
	}

	c.session.Authenticated = true
	c.session.AuthData = result.AuthData
	c.session.LoginData = result.AuthData
	c.session.authFailures = 0
	c.engine.metrics.authResultCount.WithLabelValues("success").Inc()
	return reply(235, "2.7.0 Authentication successful")
}

func (c *Conn) authFailed(mech, msg string) Reply {
	c.session.authFailures++
	c.session.FailCounts["AUTH"]++
	c.engine.metrics.authResultCount.WithLabelValues("failure").Inc()
	if c.session.authFailures >= c.engine.opts.AuthMaxFailures {
		return replyf(421, "%s Error: too many authentication failures", c.hostname)
	}
	return reply(535, msg)
}

// ChallengeAuth implements Challenger.
func (c *Conn) ChallengeAuth(prompt string) (string, error) {
	enc := base64.StdEncoding.EncodeToString([]byte(prompt))
	if err := c.writeResponse(reply(334, enc)); err != nil {
		return "", err
	}

	line, err := readLimitedLine(c.reader, defaultLineLengthLimit)
	if err != nil {
		return "", err
	}
	if line == "*" {
		return "", ErrAuthAborted
	}

	buf, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// builtinPlain implements the PLAIN mechanism (RFC 4616). args, if
// present, is the base64 initial response carried on the AUTH command
// line; otherwise a challenge is issued and the response decoded by
// ChallengeAuth, which already strips the base64 layer.
func builtinPlain(ch Challenger, args string) (ok bool, authData interface{}, code int, msg string) {
	var creds *PlainCredentials
	var err error

	if args != "" {
		creds, err = decodePlainResponse(args)
	} else {
		var resp string
		resp, err = ch.ChallengeAuth("")
		if err == nil {
			creds, err = parsePlainFields(resp)
		}
	}
	if err != nil {
		if err == ErrAuthAborted {
			return false, nil, 501, "5.7.0 Authentication cancelled"
		}
		return false, nil, 501, "5.5.2 Invalid PLAIN response"
	}

	norm, err := normalizeCredentials(creds)
	if err != nil {
		return false, nil, 501, "5.5.2 Invalid username"
	}

	return true, norm, 0, ""
}

// builtinLogin implements the LOGIN mechanism.
func builtinLogin(ch Challenger, args string) (ok bool, authData interface{}, code int, msg string) {
	var user string
	var err error
	if args != "" {
		buf, derr := base64.StdEncoding.DecodeString(args)
		if derr != nil {
			return false, nil, 501, "5.5.2 Invalid authentication response"
		}
		user = string(buf)
	} else {
		user, err = ch.ChallengeAuth(AuthLoginUsernameChallenge)
		if err != nil {
			if err == ErrAuthAborted {
				return false, nil, 501, "5.7.0 Authentication cancelled"
			}
			return false, nil, 501, "5.5.2 Invalid authentication response"
		}
	}

	pass, err := ch.ChallengeAuth(AuthLoginPasswordChallenge)
	if err != nil {
		if err == ErrAuthAborted {
			return false, nil, 501, "5.7.0 Authentication cancelled"
		}
		return false, nil, 501, "5.5.2 Invalid authentication response"
	}

	creds := &PlainCredentials{AuthcID: user, Password: pass}
	norm, err := normalizeCredentials(creds)
	if err != nil {
		return false, nil, 501, "5.5.2 Invalid username"
	}

	return true, norm, 0, ""
}
