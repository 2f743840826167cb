package smtpd

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistryIsPrivatePerEngine(t *testing.T) {
	e1, err := NewEngine(Options{Handler: BaseHandler{}, Hostname: "a.example.org"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e2, err := NewEngine(Options{Handler: BaseHandler{}, Hostname: "b.example.org"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if e1.Registry() == e2.Registry() {
		t.Errorf("expected each Engine to have its own registry")
	}

	var _ *prometheus.Registry = e1.Registry()
}

func TestCommandCountIncrements(t *testing.T) {
	e, err := NewEngine(Options{Handler: BaseHandler{}, Hostname: "mail.example.org"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ts := startSessionWithEngine(t, e)
	defer ts.close()

	ts.readReply()
	ts.send("NOOP")
	ts.readReply()

	before, err := e.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range before {
		if mf.GetName() == "smtpd_command_count" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected smtpd_command_count to be registered and gathered")
	}
}
