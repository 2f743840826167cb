// Package config loads smtpd.Options from a YAML file: a plain on-disk
// representation of the engine's knobs, read once at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/relaysmtp/smtpd"
	"github.com/relaysmtp/smtpd/internal/set"
)

// Config is the on-disk representation of smtpd.Options. Durations are
// given as strings parseable by time.ParseDuration (e.g. "30s").
type Config struct {
	Hostname      string `yaml:"hostname"`
	Ident         string `yaml:"ident"`
	DataSizeLimit int64  `yaml:"data_size_limit"`

	EnableSMTPUTF8 bool `yaml:"enable_smtp_utf8"`
	DecodeData     bool `yaml:"decode_data"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	RequireSTARTTLS bool   `yaml:"require_starttls"`
	Timeout         string `yaml:"timeout"`

	AuthRequired           bool     `yaml:"auth_required"`
	InsecureAuthWithoutTLS bool     `yaml:"insecure_auth_without_tls"`
	AuthExcludeMechanism   []string `yaml:"auth_exclude_mechanism"`
	AuthMaxFailures        int      `yaml:"auth_max_failures"`

	ProxyProtocolTimeout string `yaml:"proxy_protocol_timeout"`

	LMTP                    bool `yaml:"lmtp"`
	MaxUnrecognizedCommands int  `yaml:"max_unrecognized_commands"`
}

// Load reads and parses fname into a Config.
func Load(fname string) (*Config, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %v", fname, err)
	}

	var c Config
	if err := yaml.UnmarshalStrict(buf, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %v", fname, err)
	}
	return &c, nil
}

// ToOptions builds an smtpd.Options from c. Handler and Authenticator are
// not part of the on-disk format: they are application code, and the
// caller must set them on the returned Options before passing it to
// smtpd.NewEngine.
func (c *Config) ToOptions() (smtpd.Options, error) {
	opts := smtpd.Options{
		Hostname:                c.Hostname,
		Ident:                   c.Ident,
		DataSizeLimit:           c.DataSizeLimit,
		EnableSMTPUTF8:          c.EnableSMTPUTF8,
		DecodeData:              c.DecodeData,
		RequireSTARTTLS:         c.RequireSTARTTLS,
		AuthRequired:            c.AuthRequired,
		InsecureAuthWithoutTLS:  c.InsecureAuthWithoutTLS,
		AuthMaxFailures:         c.AuthMaxFailures,
		LMTP:                    c.LMTP,
		MaxUnrecognizedCommands: c.MaxUnrecognizedCommands,
	}

	if len(c.AuthExcludeMechanism) > 0 {
		opts.AuthExcludeMechanism = set.NewString(c.AuthExcludeMechanism...)
	}

	if c.CertFile != "" || c.KeyFile != "" {
		tlsConfig, err := loadTLSConfig(c.CertFile, c.KeyFile)
		if err != nil {
			return opts, err
		}
		opts.TLSConfig = tlsConfig
	}

	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return opts, fmt.Errorf("config: invalid timeout %q: %v", c.Timeout, err)
		}
		opts.Timeout = d
	}

	if c.ProxyProtocolTimeout != "" {
		d, err := time.ParseDuration(c.ProxyProtocolTimeout)
		if err != nil {
			return opts, fmt.Errorf("config: invalid proxy_protocol_timeout %q: %v", c.ProxyProtocolTimeout, err)
		}
		opts.ProxyProtocolTimeout = d
	}

	return opts, nil
}
