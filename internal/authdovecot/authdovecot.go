// Package authdovecot implements an smtpd.Authenticator backed by
// Dovecot's authentication service, talking to its userdb and client
// sockets directly.
//
// https://wiki.dovecot.org/Design/AuthProtocol
// https://wiki.dovecot.org/Services#auth
package authdovecot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/relaysmtp/smtpd"
)

// DefaultTimeout bounds connection and I/O operations against the Dovecot
// sockets.
const DefaultTimeout = 5 * time.Second

var (
	errUsernameNotSafe = errors.New("authdovecot: username not safe (contains spaces)")
	errFailedToConnect = errors.New("authdovecot: failed to connect to dovecot")
	errNoUserdbSocket  = errors.New("authdovecot: unable to find userdb socket")
	errNoClientSocket  = errors.New("authdovecot: unable to find client socket")
)

var defaultUserdbPaths = []string{
	"/var/run/dovecot/auth-smtpd-userdb",
	"/var/run/dovecot/auth-userdb",
}

var defaultClientPaths = []string{
	"/var/run/dovecot/auth-smtpd-client",
	"/var/run/dovecot/auth-client",
}

// Auth is an smtpd.Authenticator backed by a Dovecot auth service.
type Auth struct {
	addr struct {
		mu     sync.Mutex
		userdb string
		client string
	}

	// Timeout applies to each connection and I/O operation. Set to
	// DefaultTimeout by NewAuth.
	Timeout time.Duration
}

// NewAuth returns a new Dovecot-backed authenticator. userdb and client
// are the paths to Dovecot's userdb and client sockets; pass "" for
// either to auto-discover it among the usual system locations.
func NewAuth(userdb, client string) *Auth {
	a := &Auth{Timeout: DefaultTimeout}
	a.addr.userdb = userdb
	a.addr.client = client
	return a
}

func (a *Auth) String() string {
	a.addr.mu.Lock()
	defer a.addr.mu.Unlock()
	return fmt.Sprintf("authdovecot.Auth(%q, %q)", a.addr.userdb, a.addr.client)
}

// Check reports whether both sockets are reachable.
func (a *Auth) Check() error {
	u, c, err := a.getAddrs()
	if err != nil {
		return err
	}
	if !(a.canDial(u) && a.canDial(c)) {
		return errFailedToConnect
	}
	return nil
}

// Exists reports whether user is known to Dovecot's userdb.
func (a *Auth) Exists(user string) (bool, error) {
	if !isUsernameSafe(user) {
		return false, errUsernameNotSafe
	}

	userdbAddr, _, err := a.getAddrs()
	if err != nil {
		return false, err
	}

	conn, err := a.dial("unix", userdbAddr)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := expect(conn, "VERSION\t1"); err != nil {
		return false, fmt.Errorf("error receiving version: %v", err)
	}
	if err := expect(conn, "SPID\t"); err != nil {
		return false, fmt.Errorf("error receiving SPID: %v", err)
	}

	if err := write(conn, "VERSION\t1\t1\n"); err != nil {
		return false, err
	}
	if err := write(conn, fmt.Sprintf("USER\t1\t%s\tservice=smtp\n", user)); err != nil {
		return false, err
	}

	resp, err := conn.ReadLine()
	switch {
	case err != nil:
		return false, fmt.Errorf("error receiving response: %v", err)
	case strings.HasPrefix(resp, "USER\t1\t"):
		return true, nil
	case strings.HasPrefix(resp, "NOTFOUND\t"):
		return false, nil
	}
	return false, fmt.Errorf("invalid response: %q", resp)
}

// authenticate checks user/passwd against Dovecot's client socket using
// the PLAIN mechanism, on the assumption that the credentials arrived
// over an already-secure channel.
func (a *Auth) authenticate(user, passwd string) (bool, error) {
	if !isUsernameSafe(user) {
		return false, errUsernameNotSafe
	}

	_, clientAddr, err := a.getAddrs()
	if err != nil {
		return false, err
	}

	conn, err := a.dial("unix", clientAddr)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := write(conn, fmt.Sprintf("VERSION\t1\t1\nCPID\t%d\n", os.Getpid())); err != nil {
		return false, err
	}

	for {
		resp, err := conn.ReadLine()
		if err != nil {
			return false, fmt.Errorf("error receiving handshake: %v", err)
		}
		if resp == "DONE" {
			break
		}
	}

	resp := base64.StdEncoding.EncodeToString(
		[]byte(fmt.Sprintf("%s\x00%s\x00%s", user, user, passwd)))
	req := fmt.Sprintf(
		"AUTH\t1\tPLAIN\tservice=smtp\tsecured\tno-penalty\tnologin\tresp=%s\n", resp)
	if err := write(conn, req); err != nil {
		return false, err
	}

	line, err := conn.ReadLine()
	switch {
	case err != nil:
		return false, fmt.Errorf("error receiving response: %v", err)
	case strings.HasPrefix(line, "OK\t1"):
		return true, nil
	case strings.HasPrefix(line, "FAIL\t1"):
		return false, nil
	}
	return false, fmt.Errorf("invalid response: %q", line)
}

// Authenticate implements smtpd.Authenticator for the built-in
// PLAIN/LOGIN mechanisms; data must be a *smtpd.PlainCredentials.
func (a *Auth) Authenticate(_ *smtpd.Session, _ *smtpd.Envelope, _ string, data interface{}) smtpd.AuthResult {
	creds, ok := data.(*smtpd.PlainCredentials)
	if !ok {
		return smtpd.AuthResult{Message: "5.5.1 mechanism not supported by this authenticator"}
	}

	ok2, err := a.authenticate(creds.AuthcID, creds.Password)
	if err != nil {
		return smtpd.AuthResult{Message: "4.3.0 authentication backend unavailable"}
	}
	if !ok2 {
		return smtpd.AuthResult{Message: "5.7.8 authentication failed"}
	}
	return smtpd.AuthResult{Success: true, AuthData: creds.AuthcID}
}

// Reload is a no-op; Dovecot-backed authentication has no local state to
// refresh.
func (a *Auth) Reload() error {
	return nil
}

func (a *Auth) dial(network, addr string) (*textproto.Conn, error) {
	nc, err := net.DialTimeout(network, addr, a.Timeout)
	if err != nil {
		return nil, err
	}
	nc.SetDeadline(time.Now().Add(a.Timeout))
	return textproto.NewConn(nc), nil
}

func expect(conn *textproto.Conn, prefix string) error {
	resp, err := conn.ReadLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, prefix) {
		return fmt.Errorf("got %q", resp)
	}
	return nil
}

func write(conn *textproto.Conn, msg string) error {
	if _, err := conn.W.Write([]byte(msg)); err != nil {
		return err
	}
	return conn.W.Flush()
}

func isUsernameSafe(user string) bool {
	for _, r := range user {
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func (a *Auth) getAddrs() (string, string, error) {
	a.addr.mu.Lock()
	defer a.addr.mu.Unlock()

	if a.addr.userdb == "" {
		for _, u := range defaultUserdbPaths {
			if a.canDial(u) {
				a.addr.userdb = u
				break
			}
		}
		if a.addr.userdb == "" {
			return "", "", errNoUserdbSocket
		}
	}

	if a.addr.client == "" {
		for _, c := range defaultClientPaths {
			if a.canDial(c) {
				a.addr.client = c
				break
			}
		}
		if a.addr.client == "" {
			return "", "", errNoClientSocket
		}
	}

	return a.addr.userdb, a.addr.client, nil
}

func (a *Auth) canDial(path string) bool {
	conn, err := a.dial("unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
