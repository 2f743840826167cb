package smtpd

import (
	"strings"
	"testing"
)

func TestRegisterCommand(t *testing.T) {
	e, err := NewEngine(Options{Handler: BaseHandler{}, Hostname: "mail.example.org"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	e.RegisterCommand("XWHO", func(c *Conn, params string) Reply {
		return reply(250, "2.0.0 "+params)
	}, "XWHO <token>")

	ts := startSessionWithEngine(t, e)
	defer ts.close()

	ts.readReply()
	ts.send("EHLO client.example.org")
	ts.readReply()

	ts.send("XWHO somevalue")
	resp := ts.readReply()
	if !strings.HasPrefix(resp, "250") || !strings.Contains(resp, "somevalue") {
		t.Errorf("got %q", resp)
	}

	ts.send("HELP XWHO")
	help := ts.readReply()
	if !strings.Contains(help, "XWHO <token>") {
		t.Errorf("HELP reply = %q, want it to include the registered syntax", help)
	}
}
