package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	KeySize = 32

	envelopeVersion = 1
)

var ErrUnknownKey = errors.New("unknown key id")

// envelope is the at-rest form of sealed data. KeyID lets older keys keep
// opening data after the current key changes.
type envelope struct {
	Version    int    `json:"v"`
	KeyID      string `json:"key_id"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Sealer encrypts blobs with AES-256-GCM under the current key and opens
// blobs sealed under any known key.
type Sealer struct {
	currentKeyID string
	keys         map[string][]byte
}

func NewSealer(currentKeyID string, keys map[string][]byte) (*Sealer, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	cp := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) != KeySize {
			return nil, fmt.Errorf("key %q must be %d bytes", id, KeySize)
		}
		cp[id] = bytes.Clone(key)
	}
	return &Sealer{currentKeyID: currentKeyID, keys: cp}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	aead, err := newAEAD(s.keys[s.currentKeyID])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	b, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		KeyID:      s.currentKeyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, nil)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return b, nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	env, ok := parseEnvelope(sealed)
	if !ok {
		return nil, fmt.Errorf("not a sealed envelope")
	}
	key, ok := s.keys[env.KeyID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKey, env.KeyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}

// IsSealed reports whether b looks like a sealed envelope.
func IsSealed(b []byte) bool {
	_, ok := parseEnvelope(b)
	return ok
}

func parseEnvelope(b []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return envelope{}, false
	}
	if env.Version == 0 || env.KeyID == "" || env.Ciphertext == "" {
		return envelope{}, false
	}
	return env, true
}

// KeyringKey returns the key stored under service/account, creating and
// storing a random one on first use.
func KeyringKey(service, account string) ([]byte, error) {
	raw, err := keyring.Get(service, account)
	if err == nil {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("decode keyring key: %w", err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("keyring key must be %d bytes, got %d", KeySize, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keyring get: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := keyring.Set(service, account, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("keyring set: %w", err)
	}
	return key, nil
}
