package storage

import (
	"errors"

	"buddy/internal/crypto"
)

var ErrSealedHistory = errors.New("history is encrypted and no key is configured")

// Sealer encrypts snapshot documents at rest.
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

func seal(s Sealer, b []byte) ([]byte, error) {
	if s == nil {
		return b, nil
	}
	return s.Seal(b)
}

// unseal accepts plain documents too, so turning encryption on keeps the
// existing history readable until the next save.
func unseal(s Sealer, b []byte) ([]byte, error) {
	if !crypto.IsSealed(b) {
		return b, nil
	}
	if s == nil {
		return nil, ErrSealedHistory
	}
	return s.Open(b)
}
