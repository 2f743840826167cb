package smtpd

import (
	"strings"
	"testing"

	"github.com/relaysmtp/smtpd/internal/set"
)

func TestEHLOAdvertisesAuthWhenConfigured(t *testing.T) {
	ts := startSession(t, Options{
		Handler:                BaseHandler{},
		Hostname:               "mail.example.org",
		InsecureAuthWithoutTLS: true,
		Authenticator:          AuthenticatorFunc(func(*Session, *Envelope, string, interface{}) AuthResult { return AuthResult{} }),
	})
	defer ts.close()

	ts.readReply()
	ts.send("EHLO client.example.org")
	r := ts.readReply()
	if !strings.Contains(r, "AUTH") || !strings.Contains(r, "PLAIN") || !strings.Contains(r, "LOGIN") {
		t.Errorf("expected AUTH PLAIN LOGIN to be advertised, got %q", r)
	}
}

func TestEHLOHonorsAuthExcludeMechanism(t *testing.T) {
	ts := startSession(t, Options{
		Handler:                BaseHandler{},
		Hostname:               "mail.example.org",
		InsecureAuthWithoutTLS: true,
		Authenticator:          AuthenticatorFunc(func(*Session, *Envelope, string, interface{}) AuthResult { return AuthResult{} }),
		AuthExcludeMechanism:   set.NewString("LOGIN"),
	})
	defer ts.close()

	ts.readReply()
	ts.send("EHLO client.example.org")
	r := ts.readReply()
	if strings.Contains(r, "LOGIN") {
		t.Errorf("expected LOGIN to be excluded, got %q", r)
	}
	if !strings.Contains(r, "PLAIN") {
		t.Errorf("expected PLAIN still advertised, got %q", r)
	}
}

func TestEHLONoAuthWithoutBackend(t *testing.T) {
	ts := startSession(t, Options{Handler: BaseHandler{}, Hostname: "mail.example.org"})
	defer ts.close()

	ts.readReply()
	ts.send("EHLO client.example.org")
	r := ts.readReply()
	if strings.Contains(r, "AUTH") {
		t.Errorf("expected no AUTH line without a configured backend, got %q", r)
	}
}

type ehloRewritingHandler struct {
	BaseHandler
}

func (ehloRewritingHandler) HandleEHLO(_ *Session, _ string, responses []string) []string {
	return append(responses, "XCUSTOM")
}

func TestEHLOHandlerCanAppendLines(t *testing.T) {
	ts := startSession(t, Options{Handler: ehloRewritingHandler{}, Hostname: "mail.example.org"})
	defer ts.close()

	ts.readReply()
	ts.send("EHLO client.example.org")
	r := ts.readReply()
	if !strings.Contains(r, "XCUSTOM") {
		t.Errorf("expected the custom EHLO line to appear, got %q", r)
	}
}
