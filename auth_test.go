package smtpd

import (
	"encoding/base64"
	"testing"
)

func TestDecodePlainResponse(t *testing.T) {
	raw := "authzid\x00authcid\x00secret"
	b64 := base64.StdEncoding.EncodeToString([]byte(raw))

	creds, err := decodePlainResponse(b64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.AuthzID != "authzid" || creds.AuthcID != "authcid" || creds.Password != "secret" {
		t.Errorf("got %+v", creds)
	}
}

func TestDecodePlainResponseMalformed(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("onlyonefield"))
	if _, err := decodePlainResponse(b64); err == nil {
		t.Errorf("expected error for malformed PLAIN response")
	}

	if _, err := decodePlainResponse("not valid base64!!"); err == nil {
		t.Errorf("expected error for invalid base64")
	}
}

func TestNormalizeCredentialsWithDomain(t *testing.T) {
	c := &PlainCredentials{AuthcID: "User@Example.org", Password: "x"}
	norm, err := normalizeCredentials(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "user@example.org"
	if norm.AuthcID != want {
		t.Errorf("got %q, want %q", norm.AuthcID, want)
	}
}

func TestNormalizeCredentialsNoDomain(t *testing.T) {
	c := &PlainCredentials{AuthcID: "User", Password: "x"}
	norm, err := normalizeCredentials(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if norm.AuthcID != "user" {
		t.Errorf("got %q, want %q", norm.AuthcID, "user")
	}
}

func TestLegacyCallbackAuthenticator(t *testing.T) {
	authr := legacyCallbackAuthenticator{
		cb: func(mechanism, login, password string) bool {
			return mechanism == "PLAIN" && login == "joe" && password == "hunter2"
		},
	}

	ok := authr.Authenticate(nil, nil, "PLAIN", &PlainCredentials{AuthcID: "joe", Password: "hunter2"})
	if !ok.Success {
		t.Errorf("expected success")
	}

	bad := authr.Authenticate(nil, nil, "PLAIN", &PlainCredentials{AuthcID: "joe", Password: "wrong"})
	if bad.Success {
		t.Errorf("expected failure")
	}

	wrongType := authr.Authenticate(nil, nil, "PLAIN", "not-credentials")
	if wrongType.Success {
		t.Errorf("expected failure for non-PlainCredentials data")
	}
}
