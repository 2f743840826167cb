// Package normalize contains functions to normalize the identities used by
// the AUTH subsystem: usernames (via PRECIS) and domains (via IDNA).
package normalize

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Split an address into its local (user) and domain parts, on the last "@".
// If there is no "@", domain is empty.
func Split(addr string) (user, domain string) {
	idx := strings.LastIndex(addr, "@")
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+1:]
}

// User normalizes a username using PRECIS.
// On error, it will also return the original username to simplify callers.
func User(user string) (string, error) {
	norm, err := precis.UsernameCaseMapped.String(user)
	if err != nil {
		return user, err
	}

	return norm, nil
}

// Domain normalizes a domain name, converting it to Unicode via IDNA and
// lower-casing it, so domains compare equal regardless of how the client
// encoded or capitalized them.
func Domain(domain string) (string, error) {
	norm, err := idna.ToUnicode(domain)
	if err != nil {
		return domain, err
	}
	return strings.ToLower(norm), nil
}

// Addr normalizes the user part of an email address using PRECIS, leaving
// the domain untouched.
func Addr(addr string) (string, error) {
	user, domain := Split(addr)

	user, err := User(user)
	if err != nil {
		return addr, err
	}

	if domain == "" {
		return user, nil
	}
	return user + "@" + domain, nil
}
