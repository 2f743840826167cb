package smtpd

import (
	"bufio"
	"errors"
)

// defaultLineLengthLimit bounds a single command line, per RFC 5321
// §4.5.3.1.6 (§4.1 of this engine's spec).
const defaultLineLengthLimit = 1001

// errLineTooLong is returned by readLimitedLine when a line exceeds the
// configured limit. readLimitedLine has already drained the rest of the
// oversized line by then, so the next read starts on a fresh line.
var errLineTooLong = errors.New("smtpd: line too long")

// readLimitedLine reads one line from r, not decoding any bytes. A line
// ends at CRLF or at a bare LF (the rule of bufio.Reader.ReadLine), and
// the terminator is not returned; a lone CR inside the line is preserved
// verbatim, a lone LF is not. If the line exceeds limit octets, the
// remainder up to the next line boundary is drained and errLineTooLong is
// returned.
func readLimitedLine(r *bufio.Reader, limit int) (string, error) {
	l, more, err := r.ReadLine()
	if err != nil {
		return "", err
	}

	if len(l) > limit || more {
		for more && err == nil {
			_, more, err = r.ReadLine()
		}
		return "", errLineTooLong
	}

	return string(l), nil
}
