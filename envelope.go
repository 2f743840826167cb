package smtpd

// Envelope holds the SMTP-level metadata and payload of a single message in
// flight within a Session. It is created on the first use after MAIL FROM
// and is never reused across messages: RSET, a fresh HELO/EHLO/LHLO,
// successful DATA delivery, or disconnection all end its lifetime.
type Envelope struct {
	// MailFrom is the reverse-path given on MAIL FROM. Empty until MAIL
	// succeeds.
	MailFrom string

	// MailOptions is the ordered list of ESMTP parameters recognized on
	// MAIL (e.g. "BODY=8BITMIME", "SIZE=1024").
	MailOptions []string

	// SMTPUTF8 is true if the SMTPUTF8 parameter was present on MAIL.
	SMTPUTF8 bool

	// RcptTos is the ordered list of forward-paths given on RCPT TO.
	RcptTos []string

	// RcptOptions holds, for each entry in RcptTos at the same index, the
	// ESMTP parameters given on that RCPT command.
	RcptOptions [][]string

	// Content is the payload after dot-unstuffing, with lines joined by
	// CRLF and no trailing terminator. Set only at DATA completion.
	Content []byte

	// OriginalContent is the payload lines as received, before
	// dot-unstuffing, joined by CRLF like Content; the terminating "."
	// line and the final CRLF are not included.
	OriginalContent []byte

	// Text is the decoded string form of Content, populated only when
	// Options.DecodeData is true.
	Text string
}

func newEnvelope() *Envelope {
	return &Envelope{}
}
