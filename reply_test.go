package smtpd

import (
	"bytes"
	"strings"
	"testing"
)

func TestReplySingleLine(t *testing.T) {
	var buf bytes.Buffer
	r := reply(250, "2.0.0 OK")
	if err := r.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	want := "250 2.0.0 OK\r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestReplyMultiLine(t *testing.T) {
	var buf bytes.Buffer
	r := Reply{Code: 250, Lines: []string{"mail.example.org", "SIZE 1024", "HELP"}}
	if err := r.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	want := "250-mail.example.org\r\n250-SIZE 1024\r\n250 HELP\r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestReplyEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := noReply.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
	if !noReply.isEmpty() {
		t.Errorf("noReply.isEmpty() = false, want true")
	}
}

func TestReplyTruncatesOverlongLine(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("x", maxReplyLine*2)
	r := reply(250, long)
	if err := r.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}
	if buf.Len() > maxReplyLine {
		t.Errorf("wrote %d octets, want <= %d", buf.Len(), maxReplyLine)
	}
}

func TestSplitMultiline(t *testing.T) {
	r := splitMultiline(550, "line one\nline two")
	if len(r.Lines) != 2 || r.Lines[0] != "line one" || r.Lines[1] != "line two" {
		t.Errorf("got %+v", r)
	}
}
