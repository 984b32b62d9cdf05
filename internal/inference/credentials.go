package inference

import (
	"errors"
	"strings"
)

// ErrNoCredentials is returned when a pool would be empty.
var ErrNoCredentials = errors.New("credential pool must not be empty")

// CredentialPool is an ordered, immutable list of API keys. Batch i uses
// key i mod len.
type CredentialPool struct {
	keys []string
}

// NewCredentialPool trims keys and drops blanks. At least one key must remain.
func NewCredentialPool(keys []string) (*CredentialPool, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCredentials
	}
	return &CredentialPool{keys: out}, nil
}

// ForBatch returns the key for batch index i.
func (p *CredentialPool) ForBatch(i uint64) string {
	return p.keys[i%uint64(len(p.keys))]
}

// Len returns the number of keys.
func (p *CredentialPool) Len() int {
	return len(p.keys)
}
