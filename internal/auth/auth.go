package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service checks bearer tokens against a single shared secret. Only a
// bcrypt hash of the secret is kept in memory.
type Service struct {
	hash []byte
	// Generated is set when no secret was configured and one was made up.
	Generated string
}

// NewService hashes secret. An empty secret gets a random one, exposed in
// Generated so the caller can print it once.
func NewService(secret string) (*Service, error) {
	s := &Service{}
	if secret == "" {
		tok, err := generateToken()
		if err != nil {
			return nil, err
		}
		secret, s.Generated = tok, tok
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	s.hash = hash
	return s, nil
}

func (s *Service) Check(token string) error {
	if token == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(token)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
