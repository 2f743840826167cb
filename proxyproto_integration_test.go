package smtpd

import (
	"strings"
	"testing"
	"time"
)

func TestHandleConnHonorsProxyProtocol(t *testing.T) {
	e, err := NewEngine(Options{
		Handler:              BaseHandler{},
		Hostname:             "mail.example.org",
		ProxyProtocolTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ts := startSessionWithEngine(t, e)
	defer ts.close()

	header := []byte{
		0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A,
		0x21, // version 2, PROXY command
		0x11, // AF_INET, STREAM
		0x00, 0x0C, // address length 12
		192, 0, 2, 55, // src IP
		198, 51, 100, 1, // dst IP
		0x9C, 0x40, // src port 40000
		0x00, 0x19, // dst port 25
	}
	if _, err := ts.client.Write(header); err != nil {
		t.Fatalf("write proxy header: %v", err)
	}

	greeting := ts.readReply()
	if !strings.HasPrefix(greeting, "220 ") {
		t.Fatalf("greeting = %q", greeting)
	}
}

func TestHandleConnRejectsBadProxyHeader(t *testing.T) {
	e, err := NewEngine(Options{
		Handler:              BaseHandler{},
		Hostname:             "mail.example.org",
		ProxyProtocolTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ts := startSessionWithEngine(t, e)
	defer ts.close()

	if _, err := ts.client.Write([]byte("not a proxy header at all!!")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ts.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := ts.client.Read(buf)
	if err == nil && n > 0 {
		t.Errorf("expected the connection to be closed without a greeting, got %q", buf[:n])
	}
}
