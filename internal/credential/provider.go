// Package credential resolves the model API key from the environment or the
// system keyring.
package credential

import (
	"errors"
	"os"
	"strings"
)

// APIKeyName is the keyring key holding the model API key.
const APIKeyName = "api_key"

// EnvVars are checked in order before the keyring.
var EnvVars = []string{"INSIGHT_API_KEY", "OPENAI_API_KEY"}

// Provider looks up the API key. The environment wins over the keyring so a
// one-off shell override needs no keyring access.
type Provider struct {
	ring   *Keyring
	getenv func(string) string
}

// NewProvider creates a Provider. ring may be nil to use the environment
// only.
func NewProvider(ring *Keyring) *Provider {
	return &Provider{ring: ring, getenv: os.Getenv}
}

// Lookup returns the API key, or "" with a nil error when none is set.
func (p *Provider) Lookup() (string, error) {
	key, _, err := p.LookupWithSource()
	return key, err
}

// LookupWithSource also reports where the key came from: the environment
// variable name, "keyring", or "" when absent.
func (p *Provider) LookupWithSource() (key, source string, err error) {
	for _, name := range EnvVars {
		if v := strings.TrimSpace(p.getenv(name)); v != "" {
			return v, name, nil
		}
	}
	if p.ring == nil {
		return "", "", nil
	}

	v, err := p.ring.Get(APIKeyName)
	if errors.Is(err, ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(v), "keyring", nil
}

// Store saves key in the keyring.
func (p *Provider) Store(key string) error {
	if p.ring == nil {
		return errors.New("no keyring available")
	}
	return p.ring.Set(APIKeyName, strings.TrimSpace(key))
}

// Forget removes the stored key. A missing key is not an error.
func (p *Provider) Forget() error {
	if p.ring == nil {
		return nil
	}
	if err := p.ring.Delete(APIKeyName); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
