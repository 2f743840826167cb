package smtpd

import (
	"bufio"
	"bytes"
	"errors"
)

// errMessageTooLarge is returned by readDataPayload when the payload
// exceeds the configured data size limit. Per §4.4, the reader keeps
// consuming bytes up to the terminator before returning this, so the
// connection's command stream does not desynchronize.
var errMessageTooLarge = errors.New("smtpd: message too large")

// readDataPayload reads a DATA payload from r until a line consisting
// solely of "." terminates it. Each line is dot-unstuffed (a leading "."
// is stripped) before being joined into content with CRLF; no trailing
// CRLF follows the last line. original holds the same lines before
// dot-unstuffing, also CRLF-joined.
//
// Oversized lines and payloads that exceed maxSize are not reported until
// the terminator has actually been seen, per §4.4 and §9's guidance on not
// short-circuiting mid-DATA (which would let the remainder of the payload
// be misinterpreted as commands).
func readDataPayload(r *bufio.Reader, maxSize int64, lineLimit int) (content, original []byte, err error) {
	var contentLines, originalLines [][]byte
	var total int64
	var lineTooLong, sizeExceeded bool

	for {
		line, more, rerr := r.ReadLine()
		if rerr != nil {
			return nil, nil, rerr
		}

		overlong := more || len(line) > lineLimit
		full := append([]byte(nil), line...)
		if overlong {
			for more {
				_, more, rerr = r.ReadLine()
				if rerr != nil {
					return nil, nil, rerr
				}
			}
			lineTooLong = true
			continue
		}

		if len(full) == 1 && full[0] == '.' {
			break
		}

		total += int64(len(full)) + 2
		unstuffed := full
		if len(full) > 0 && full[0] == '.' {
			unstuffed = full[1:]
		}

		if total > maxSize {
			sizeExceeded = true
			continue
		}

		originalLines = append(originalLines, full)
		contentLines = append(contentLines, unstuffed)
	}

	if lineTooLong {
		return nil, nil, errLineTooLong
	}
	if sizeExceeded {
		return nil, nil, errMessageTooLarge
	}

	return bytes.Join(contentLines, []byte("\r\n")), bytes.Join(originalLines, []byte("\r\n")), nil
}
