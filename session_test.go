package smtpd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNewSession(t *testing.T) {
	want := &Session{
		Peer:              nil,
		CommandCallCounts: map[string]int{},
		FailCounts:        map[string]int{},
	}
	got := newSession(nil)

	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Session{})); diff != "" {
		t.Errorf("newSession() mismatch (-want +got):\n%s", diff)
	}
}

func TestResetForTLSClearsAuthAndGreeting(t *testing.T) {
	s := newSession(nil)
	s.Hostname = "client.example.org"
	s.Extended = true
	s.Authenticated = true
	s.AuthData = "joe"
	s.LoginData = "joe"

	s.resetForTLS()

	want := &Session{
		Peer:              nil,
		CommandCallCounts: map[string]int{},
		FailCounts:        map[string]int{},
	}
	if diff := cmp.Diff(want, s, cmpopts.IgnoreUnexported(Session{})); diff != "" {
		t.Errorf("resetForTLS() mismatch (-want +got):\n%s", diff)
	}
}
