package config

import "crypto/tls"

// loadTLSConfig builds a *tls.Config carrying the certificate pair at
// certFile/keyFile.
func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},

		// Disable session tickets: works around deliverability issues some
		// large mail providers have with Go's session ticket implementation.
		SessionTicketsDisabled: true,
	}, nil
}
