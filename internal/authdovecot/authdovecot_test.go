package authdovecot

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaysmtp/smtpd"
	"github.com/relaysmtp/smtpd/internal/testlib"
)

func TestIsUsernameSafe(t *testing.T) {
	cases := []struct {
		user string
		want bool
	}{
		{"joe", true},
		{"joe@example.org", true},
		{"joe smith", false},
		{"joe\tsmith", false},
	}
	for _, c := range cases {
		if got := isUsernameSafe(c.user); got != c.want {
			t.Errorf("isUsernameSafe(%q) = %v, want %v", c.user, got, c.want)
		}
	}
}

// fakeUserdbServer accepts one connection on the given socket and runs the
// userdb handshake, reporting user as found or not found.
func fakeUserdbServer(t *testing.T, path string, knownUsers map[string]bool) {
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		w := bufio.NewWriter(conn)
		r := bufio.NewReader(conn)

		w.WriteString("VERSION\t1\t1\n")
		w.WriteString("SPID\t1234\n")
		w.Flush()

		r.ReadString('\n') // VERSION from client
		line, _ := r.ReadString('\n')
		// line is "USER\t1\t<user>\tservice=smtp\n"
		var user string
		fsscan(line, &user)
		if knownUsers[user] {
			w.WriteString("USER\t1\t" + user + "\n")
		} else {
			w.WriteString("NOTFOUND\t1\n")
		}
		w.Flush()
	}()
}

// fsscan extracts the third tab-separated field of a USER request line.
func fsscan(line string, user *string) {
	fields := splitTabs(line)
	if len(fields) >= 3 {
		*user = fields[2]
	}
}

func splitTabs(s string) []string {
	var fields []string
	start := 0
	for i, c := range s {
		if c == '\t' || c == '\n' {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	return fields
}

func TestExists(t *testing.T) {
	dir := testlib.MustTempDir(t)
	defer testlib.RemoveIfOk(t, dir)

	sock := filepath.Join(dir, "userdb.sock")
	fakeUserdbServer(t, sock, map[string]bool{"joe": true})

	a := NewAuth(sock, sock)
	a.Timeout = 2 * time.Second

	ok, err := a.Exists("joe")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Errorf("expected joe to exist")
	}
}

func TestExistsNotFound(t *testing.T) {
	dir := testlib.MustTempDir(t)
	defer testlib.RemoveIfOk(t, dir)

	sock := filepath.Join(dir, "userdb.sock")
	fakeUserdbServer(t, sock, map[string]bool{})

	a := NewAuth(sock, sock)
	a.Timeout = 2 * time.Second

	ok, err := a.Exists("nobody")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Errorf("expected nobody to not exist")
	}
}

func TestExistsRejectsUnsafeUsername(t *testing.T) {
	a := NewAuth("/nonexistent", "/nonexistent")
	if _, err := a.Exists("joe smith"); err != errUsernameNotSafe {
		t.Errorf("got error %v, want %v", err, errUsernameNotSafe)
	}
}

func TestAuthenticateImplementsAuthenticatorWrongType(t *testing.T) {
	a := NewAuth("/nonexistent", "/nonexistent")
	result := a.Authenticate(nil, nil, "PLAIN", "not-credentials")
	if result.Success {
		t.Errorf("expected failure for non-PlainCredentials data")
	}
}

func TestAuthenticateBackendUnavailable(t *testing.T) {
	a := NewAuth("/nonexistent", "/nonexistent")
	a.Timeout = 200 * time.Millisecond
	result := a.Authenticate(nil, nil, "PLAIN", &smtpd.PlainCredentials{AuthcID: "joe", Password: "x"})
	if result.Success {
		t.Errorf("expected failure when the backend is unreachable")
	}
}

func TestReloadIsNoop(t *testing.T) {
	a := NewAuth("/nonexistent", "/nonexistent")
	if err := a.Reload(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
