// Package userauth implements a file-backed smtpd.Authenticator, storing
// usernames and scrypt-hashed passwords in a YAML file.
//
// Users must be normalized (via internal/normalize) and must not contain
// whitespace; the library enforces this on AddUser.
//
// The default and only production scheme is scrypt, with hard-coded
// parameters; a plain-text scheme is also supported, for debugging only.
// Writing the database does a full rewrite each time and is not safe to
// call concurrently from different processes.
package userauth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/scrypt"
	"gopkg.in/yaml.v2"

	"github.com/relaysmtp/smtpd"
	"github.com/relaysmtp/smtpd/internal/normalize"
)

// scryptParams are the hard-coded parameters used for every new password,
// following the recommendations in the scrypt paper.
const (
	scryptLogN   = 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

type entry struct {
	Scheme    string `yaml:"scheme"`
	Salt      []byte `yaml:"salt,omitempty"`
	LogN      int    `yaml:"logn,omitempty"`
	R         int    `yaml:"r,omitempty"`
	P         int    `yaml:"p,omitempty"`
	KeyLen    int    `yaml:"keylen,omitempty"`
	Encrypted []byte `yaml:"encrypted,omitempty"`
	Plain     string `yaml:"plain,omitempty"`
}

func (e *entry) matches(plain string) bool {
	switch e.Scheme {
	case "scrypt":
		dk, err := scrypt.Key([]byte(plain), e.Salt, 1<<e.LogN, e.R, e.P, e.KeyLen)
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(dk, e.Encrypted) == 1
	case "plain":
		return plain == e.Plain
	default:
		return false
	}
}

type fileFormat struct {
	Users map[string]*entry `yaml:"users"`
}

// DB is a single user database, backed by a YAML file on disk.
type DB struct {
	fname string

	mu    sync.RWMutex
	users map[string]*entry
}

// New returns an empty database backed by fname. The file is not read or
// created until Load or Write is called.
func New(fname string) *DB {
	return &DB{fname: fname, users: map[string]*entry{}}
}

// Load reads the database from fname. A missing file is treated as an
// empty database, matching how a freshly deployed domain has no users
// yet.
func Load(fname string) (*DB, error) {
	db := New(fname)

	buf, err := os.ReadFile(fname)
	if errors.Is(err, os.ErrNotExist) {
		return db, nil
	}
	if err != nil {
		return db, err
	}

	var ff fileFormat
	if err := yaml.Unmarshal(buf, &ff); err != nil {
		return db, err
	}
	if ff.Users == nil {
		ff.Users = map[string]*entry{}
	}
	db.users = ff.Users
	return db, nil
}

// Reload refreshes the database's contents from disk. If reading fails,
// the in-memory database is left unchanged and the error is returned.
func (db *DB) Reload() error {
	newdb, err := Load(db.fname)
	if err != nil {
		return err
	}
	db.mu.Lock()
	db.users = newdb.users
	db.mu.Unlock()
	return nil
}

// Write persists the database to disk, replacing its previous contents.
func (db *DB) Write() error {
	db.mu.RLock()
	ff := fileFormat{Users: db.users}
	buf, err := yaml.Marshal(ff)
	db.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(db.fname, buf, 0660)
}

// AddUser adds or overwrites name's password, hashed with scrypt. name
// must already be normalized.
func (db *DB) AddUser(name, plainPassword string) error {
	if norm, err := normalize.User(name); err != nil || name != norm {
		return errors.New("userauth: invalid username")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("userauth: failed to get salt: %v", err)
	}

	enc, err := scrypt.Key([]byte(plainPassword), salt, 1<<scryptLogN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("userauth: scrypt failed: %v", err)
	}

	db.mu.Lock()
	db.users[name] = &entry{
		Scheme:    "scrypt",
		Salt:      salt,
		LogN:      scryptLogN,
		R:         scryptR,
		P:         scryptP,
		KeyLen:    scryptKeyLen,
		Encrypted: enc,
	}
	db.mu.Unlock()
	return nil
}

// RemoveUser removes name, reporting whether it was present.
func (db *DB) RemoveUser(name string) bool {
	db.mu.Lock()
	_, present := db.users[name]
	delete(db.users, name)
	db.mu.Unlock()
	return present
}

// Exists reports whether name is present in the database.
func (db *DB) Exists(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, present := db.users[name]
	return present
}

// Len returns the number of users in the database.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.users)
}

// authenticate checks name/plainPassword against the database.
func (db *DB) authenticate(name, plainPassword string) bool {
	db.mu.RLock()
	e, ok := db.users[name]
	db.mu.RUnlock()
	if !ok {
		return false
	}
	return e.matches(plainPassword)
}

// Authenticate implements smtpd.Authenticator for the built-in
// PLAIN/LOGIN mechanisms; data must be a *smtpd.PlainCredentials.
func (db *DB) Authenticate(_ *smtpd.Session, _ *smtpd.Envelope, _ string, data interface{}) smtpd.AuthResult {
	creds, ok := data.(*smtpd.PlainCredentials)
	if !ok {
		return smtpd.AuthResult{Message: "5.5.1 mechanism not supported by this authenticator"}
	}

	if db.authenticate(creds.AuthcID, creds.Password) {
		return smtpd.AuthResult{Success: true, AuthData: creds.AuthcID}
	}
	return smtpd.AuthResult{Message: "5.7.8 authentication failed"}
}
