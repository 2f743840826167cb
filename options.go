package smtpd

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/relaysmtp/smtpd/internal/set"
)

// systemHostname returns the host name reported by the kernel
// (os.Hostname), falling back to "localhost" if it cannot be determined.
func systemHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// CallLimit bounds how many times each command may be invoked in a single
// session before the engine gives up on the connection with a 421.
//
// It is a small sum type: either every command shares the same Uniform
// limit, or individual commands get their own limit via PerCommand, with
// "*" acting as the default for any command not explicitly listed.
type CallLimit struct {
	uniform    int
	perCommand map[string]int
	isSet      bool
}

// UniformCallLimit applies the same limit to every command.
func UniformCallLimit(n int) CallLimit {
	return CallLimit{uniform: n, isSet: true}
}

// PerCommandCallLimit applies per-command limits, taken from limits. The
// "*" key, if present, is used as the default for commands not listed
// explicitly; if absent, unlisted commands fall back to defaultCallLimit.
func PerCommandCallLimit(limits map[string]int) CallLimit {
	m := make(map[string]int, len(limits))
	for k, v := range limits {
		m[k] = v
	}
	return CallLimit{perCommand: m, isSet: true}
}

// defaultCallLimit is used for commands with no explicit entry when a
// PerCommandCallLimit has no "*" key.
const defaultCallLimit = 1000

// limitFor returns the call limit for cmd, and whether a limit applies at
// all.
func (c CallLimit) limitFor(cmd string) (int, bool) {
	if !c.isSet {
		return 0, false
	}
	if c.perCommand == nil {
		return c.uniform, true
	}
	if n, ok := c.perCommand[cmd]; ok {
		return n, true
	}
	if n, ok := c.perCommand["*"]; ok {
		return n, true
	}
	return defaultCallLimit, true
}

// Options configure an Engine. Handler is the only required field; all
// others have workable defaults (a plain SMTP server with no TLS and no
// authentication).
type Options struct {
	// Handler receives protocol checkpoint callbacks. See hooks.go.
	Handler Handler

	// Hostname is used in the greeting banner and in EHLO responses.
	// Defaults to the system hostname if empty.
	Hostname string

	// Ident is the product string sent after Hostname in the greeting,
	// e.g. "220 mail.example.org ESMTP <Ident>".
	Ident string

	// DataSizeLimit bounds the size, in octets, of a DATA payload.
	// Advertised via the SIZE extension. Zero means the default applies.
	DataSizeLimit int64

	// EnableSMTPUTF8 advertises SMTPUTF8 and permits UTF-8 octets in
	// command arguments and in pushed replies.
	EnableSMTPUTF8 bool

	// DecodeData additionally decodes the payload into Envelope.Text: as
	// UTF-8 if EnableSMTPUTF8 is set or MAIL carried SMTPUTF8, else as
	// Latin-1. Envelope.Content is always the raw []byte regardless.
	DecodeData bool

	// TLSConfig, if non-nil, advertises and enables STARTTLS.
	TLSConfig *tls.Config

	// RequireSTARTTLS rejects most commands until STARTTLS succeeds.
	RequireSTARTTLS bool

	// Timeout bounds the idle interval between commands. Defaults to
	// 300 seconds if zero.
	Timeout time.Duration

	// AuthRequired gates most commands on a completed AUTH exchange.
	AuthRequired bool

	// InsecureAuthWithoutTLS permits AUTH before TLS is established. The
	// spec's default (auth_require_tls=true) is the zero value here: TLS
	// is required before AUTH unless this is explicitly set.
	InsecureAuthWithoutTLS bool

	// AuthExcludeMechanism suppresses the named built-in or discovered
	// mechanisms from being advertised or accepted.
	AuthExcludeMechanism *set.String

	// AuthCallback is the legacy authenticator shape: (mechanism, login,
	// password) -> ok. Adapted internally into the Authenticator shape.
	// Ignored if Authenticator is set.
	AuthCallback func(mechanism, login, password string) bool

	// Authenticator is the current-shape authenticator.
	Authenticator Authenticator

	// AuthMaxFailures is the number of consecutive AUTH failures allowed
	// before the connection is dropped with a 421. Defaults to 3.
	AuthMaxFailures int

	// CommandCallLimit bounds per-command invocation counts. Zero value
	// (CallLimit{}) means unlimited.
	CommandCallLimit CallLimit

	// ProxyProtocolTimeout, if non-zero, makes the engine expect a PROXY
	// protocol v2 preamble before the SMTP greeting, and bounds how long
	// it will wait for it.
	ProxyProtocolTimeout time.Duration

	// LMTP puts the engine in LMTP mode: LHLO replaces HELO/EHLO, and
	// DATA emits one reply per recipient.
	LMTP bool

	// MaxUnrecognizedCommands bounds how many unrecognized commands are
	// tolerated, pre-greeting, before the connection is dropped. Defaults
	// to 25.
	MaxUnrecognizedCommands int
}

// validate fills in defaults and sanity-checks Options, matching §6's
// "type errors raise at construction" requirement.
func (o *Options) validate() error {
	if o.Handler == nil {
		return fmt.Errorf("smtpd: Options.Handler is required")
	}
	if o.Hostname == "" {
		o.Hostname = systemHostname()
	}
	if o.Ident == "" {
		o.Ident = "smtpd"
	}
	if o.DataSizeLimit == 0 {
		o.DataSizeLimit = 33554432
	}
	if o.Timeout == 0 {
		o.Timeout = 300 * time.Second
	}
	if o.AuthMaxFailures == 0 {
		o.AuthMaxFailures = 3
	}
	if o.MaxUnrecognizedCommands == 0 {
		o.MaxUnrecognizedCommands = 25
	}
	if o.AuthExcludeMechanism == nil {
		o.AuthExcludeMechanism = &set.String{}
	}
	return nil
}
