package smtpd

import (
	"strings"
	"testing"
)

type perRecipientHandler struct {
	BaseHandler
	seen []string
}

func (h *perRecipientHandler) HandleDATA(s *Session, e *Envelope) (int, string) {
	h.seen = append(h.seen, e.RcptTos[0])
	if e.RcptTos[0] == "reject@example.org" {
		return 550, "5.1.1 no such user"
	}
	return 250, "2.0.0 delivered to " + e.RcptTos[0]
}

func TestLMTPPerRecipientReplies(t *testing.T) {
	h := &perRecipientHandler{}
	ts := startSession(t, Options{Handler: h, Hostname: "mail.example.org", LMTP: true})
	defer ts.close()

	ts.readReply()
	ts.send("LHLO client.example.org")
	if r := ts.readReply(); !strings.HasPrefix(r, "250") {
		t.Fatalf("LHLO reply = %q", r)
	}

	ts.send("MAIL FROM:<sender@example.org>")
	ts.readReply()
	ts.send("RCPT TO:<accept@example.org>")
	ts.readReply()
	ts.send("RCPT TO:<reject@example.org>")
	ts.readReply()

	ts.send("DATA")
	if r := ts.readReply(); !strings.HasPrefix(r, "354") {
		t.Fatalf("DATA reply = %q", r)
	}
	ts.send("hello")
	ts.send(".")

	first := ts.readReply()
	if !strings.HasPrefix(first, "250") || !strings.Contains(first, "accept@example.org") {
		t.Errorf("first reply = %q", first)
	}
	second := ts.readReply()
	if !strings.HasPrefix(second, "550") {
		t.Errorf("second reply = %q", second)
	}

	if len(h.seen) != 2 || h.seen[0] != "accept@example.org" || h.seen[1] != "reject@example.org" {
		t.Errorf("seen = %v", h.seen)
	}
}

func TestLHLORejectedOutsideLMTPMode(t *testing.T) {
	ts := startSession(t, Options{Handler: BaseHandler{}, Hostname: "mail.example.org"})
	defer ts.close()

	ts.readReply()
	ts.send("LHLO client.example.org")
	r := ts.readReply()
	if !strings.HasPrefix(r, "500") {
		t.Errorf("got %q, want a 500", r)
	}
}
