package smtpd

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadDataPayload(t *testing.T) {
	cases := []struct {
		input       string
		max         int64
		wantContent string
		wantErr     error
	}{
		{".\r\n", 10, "", nil},
		{"abc\r\n.\r\n", 10, "abc", nil},
		{"abc\r\ndef\r\n.\r\n", 10, "abc\r\ndef", nil},

		// Dot-stuffing: a leading dot on a line is removed.
		// https://www.rfc-editor.org/rfc/rfc5321#section-4.5.2
		{"abc\r\n.def\r\n.\r\n", 20, "abc\r\ndef", nil},
		{"abc\r\n..def\r\n.\r\n", 20, "abc\r\n.def", nil},
		{"..\r\n.\r\n", 20, ".", nil},

		// Size limit exceeded.
		{"abcdefghij\r\n.\r\n", 5, "", errMessageTooLarge},
		{"abc\r\ndefghij\r\n.\r\n", 5, "", errMessageTooLarge},
	}

	for i, c := range cases {
		r := bufio.NewReader(strings.NewReader(c.input))
		content, _, err := readDataPayload(r, c.max, defaultLineLengthLimit)
		if err != c.wantErr {
			t.Errorf("case %d %q: got error %v, want %v", i, c.input, err, c.wantErr)
			continue
		}
		if err == nil && string(content) != c.wantContent {
			t.Errorf("case %d %q: got %q, want %q", i, c.input, content, c.wantContent)
		}
	}
}

func TestReadDataPayloadOriginalVsContent(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("abc\r\n..def\r\n.\r\n"))
	content, original, err := readDataPayload(r, 1<<20, defaultLineLengthLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != "abc\r\n.def" {
		t.Errorf("content = %q, want %q", content, "abc\r\n.def")
	}
	if string(original) != "abc\r\n..def" {
		t.Errorf("original = %q, want %q", original, "abc\r\n..def")
	}
}

func TestReadDataPayloadLineTooLong(t *testing.T) {
	long := strings.Repeat("x", 50) + "\r\n.\r\n"
	r := bufio.NewReader(strings.NewReader(long))
	_, _, err := readDataPayload(r, 1<<20, 10)
	if err != errLineTooLong {
		t.Errorf("got error %v, want %v", err, errLineTooLong)
	}
}

type badReader struct{}

func (badReader) Read(p []byte) (int, error) {
	return 0, io.ErrNoProgress
}

func TestReadDataPayloadReadError(t *testing.T) {
	r := bufio.NewReader(badReader{})
	_, _, err := readDataPayload(r, 10, defaultLineLengthLimit)
	if err != io.ErrNoProgress {
		t.Errorf("got error %v, want %v", err, io.ErrNoProgress)
	}
}

func TestReadDataPayloadEmptyLines(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("a\r\n\r\nb\r\n.\r\n"))
	content, _, err := readDataPayload(r, 1<<20, defaultLineLengthLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(content, []byte("a\r\n\r\nb")) {
		t.Errorf("content = %q, want %q", content, "a\r\n\r\nb")
	}
}
