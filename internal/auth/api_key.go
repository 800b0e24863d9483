package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoAPIKeys          = errors.New("no api keys configured")
)

// KeyRing accepts any of a fixed set of API keys, e.g. the old and new key
// during a rotation.
type KeyRing struct {
	keys [][]byte
}

// ParseKeyRing splits a comma-separated API_KEY value. Blank entries are
// ignored.
func ParseKeyRing(raw string) (*KeyRing, error) {
	kr := &KeyRing{}
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kr.keys = append(kr.keys, []byte(k))
		}
	}
	if len(kr.keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	return kr, nil
}

// Len reports how many keys are accepted.
func (kr *KeyRing) Len() int { return len(kr.keys) }

// Verify compares credential against every key in constant time.
func (kr *KeyRing) Verify(credential string) error {
	if credential == "" {
		return ErrInvalidCredentials
	}
	c := []byte(credential)
	ok := 0
	for _, k := range kr.keys {
		ok |= subtle.ConstantTimeCompare(c, k)
	}
	if ok != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
