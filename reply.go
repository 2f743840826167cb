package smtpd

import (
	"fmt"
	"io"
	"strings"
)

// maxReplyLine is the maximum size, in octets including the CRLF
// terminator, of a single reply line (§8).
const maxReplyLine = 512

// Reply is a not-persisted SMTP response: a three-digit code plus one or
// more human-readable lines. Multiple lines are written with "code-line"
// for every line but the last, and "code line" for the last, per RFC 5321
// §4.2.1.
type Reply struct {
	Code  int
	Lines []string
}

// reply builds a single-line Reply.
func reply(code int, line string) Reply {
	return Reply{Code: code, Lines: []string{line}}
}

// replyf builds a single-line Reply with a formatted message.
func replyf(code int, format string, a ...interface{}) Reply {
	return reply(code, fmt.Sprintf(format, a...))
}

// empty replies carry no text; used by handlers that have already written
// their own response (e.g. STARTTLS, DATA) and want the
// dispatcher to skip writing anything.
var noReply = Reply{}

func (r Reply) isEmpty() bool {
	return r.Code == 0
}

// writeTo writes r to w as one or more CRLF-terminated lines, truncating
// any individual line so the wire representation never exceeds
// maxReplyLine octets.
func (r Reply) writeTo(w io.Writer) error {
	if r.isEmpty() {
		return nil
	}
	lines := r.Lines
	if len(lines) == 0 {
		lines = []string{""}
	}

	for i, line := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}

		prefix := fmt.Sprintf("%d%s", r.Code, sep)
		budget := maxReplyLine - len(prefix) - 2 // room for CRLF
		if budget < 0 {
			budget = 0
		}
		if len(line) > budget {
			line = line[:budget]
		}

		if _, err := io.WriteString(w, prefix+line+"\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// splitMultiline turns a "\n"-separated message, as a hook might produce,
// into a Lines slice suitable for Reply.
func splitMultiline(code int, msg string) Reply {
	return Reply{Code: code, Lines: strings.Split(msg, "\n")}
}
