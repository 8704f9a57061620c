package anonymize

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
)

// SaltSize is the salt length in bytes.
const SaltSize = 32

// Salt is the per-deployment secret mixed into every hash.
type Salt [SaltSize]byte

var (
	// ErrSaltNotReady is returned when anonymization is requested before
	// the salt is installed.
	ErrSaltNotReady = errors.New("anonymize: salt not ready")
	// ErrSaltAlreadySet is returned when installing a second salt.
	ErrSaltAlreadySet = errors.New("anonymize: salt already set")
)

var saltKey = []byte("salt")

// GenerateSalt reads SaltSize bytes from r, or crypto/rand when r is nil.
func GenerateSalt(r io.Reader) (Salt, error) {
	if r == nil {
		r = rand.Reader
	}
	var s Salt
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return Salt{}, fmt.Errorf("anonymize: read salt: %w", err)
	}
	return s, nil
}

// SaltProvider holds the salt for the process lifetime. The salt is
// persisted on first install and immutable afterwards.
type SaltProvider struct {
	db   *pebblestore.DB
	salt *Salt
}

// OpenSaltProvider loads a previously installed salt, if any.
func OpenSaltProvider(db *pebblestore.DB) (*SaltProvider, error) {
	p := &SaltProvider{db: db}
	v, err := db.Get(saltKey)
	switch {
	case err == nil:
		if len(v) != SaltSize {
			return nil, fmt.Errorf("anonymize: stored salt has %d bytes", len(v))
		}
		var s Salt
		copy(s[:], v)
		p.salt = &s
	case pebblestore.IsNotFound(err):
	default:
		return nil, err
	}
	return p, nil
}

// Get returns the salt once installed.
func (p *SaltProvider) Get() (*Salt, bool) {
	return p.salt, p.salt != nil
}

// Ready reports whether the salt is installed.
func (p *SaltProvider) Ready() bool { return p.salt != nil }

// Install persists s. It fails if a salt already exists.
func (p *SaltProvider) Install(s Salt) error {
	if p.salt != nil {
		return ErrSaltAlreadySet
	}
	if err := p.db.Set(saltKey, s[:]); err != nil {
		return err
	}
	p.salt = &s
	return nil
}
