package smtpd

import "strings"

// CommandFunc handles one SMTP command. params is the raw text that
// followed the command keyword (trailing whitespace significant only
// within arguments, per §4.2).
type CommandFunc func(c *Conn, params string) Reply

// RegisterCommand adds name as a recognized command, beyond the built-in
// HELO/EHLO/MAIL/etc, per §9's "explicit register command operation". help
// is an optional syntax string surfaced by HELP; pass "" to omit it.
//
// RegisterCommand is not safe to call concurrently with HandleConn; all
// registration should happen before the engine starts accepting
// connections.
func (e *Engine) RegisterCommand(name string, fn CommandFunc, help string) {
	name = strings.ToUpper(name)
	e.extra[name] = fn
	if help != "" {
		e.extraHelp[name] = help
	}
}
