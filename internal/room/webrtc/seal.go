package webrtc

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for the room password key.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
)

// sealVersion prefixes every sealed signal and is authenticated as AAD.
const sealVersion byte = 0x01

var errUnsealable = errors.New("signal could not be opened")

// sealer encrypts signaling payloads under a key derived from the room
// password. A nil sealer passes payloads through unchanged.
type sealer struct {
	aead cipher.AEAD
}

// newSealer returns nil when password is empty. The room key salts the
// derivation so the same password yields different keys per room.
func newSealer(password, roomKey string) (*sealer, error) {
	if password == "" {
		return nil, nil
	}

	key := argon2.IDKey([]byte(password), []byte("peer-chat.signal.v1:"+roomKey), argonIterations, argonMemory, argonParallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating signal cipher: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	if s == nil {
		return plaintext, nil
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+s.aead.Overhead())
	out[0] = sealVersion
	nonce := out[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(out, nonce, plaintext, out[:1]), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	if s == nil {
		return sealed, nil
	}

	if len(sealed) < 1+chacha20poly1305.NonceSizeX+s.aead.Overhead() || sealed[0] != sealVersion {
		return nil, errUnsealable
	}
	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := s.aead.Open(nil, nonce, sealed[1+chacha20poly1305.NonceSizeX:], sealed[:1])
	if err != nil {
		return nil, errUnsealable
	}
	return plaintext, nil
}
