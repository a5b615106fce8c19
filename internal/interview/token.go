package interview

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/talentloop/talentloop/internal/db"
)

const tokenBytes = 32

// TokenStore is the slice of the repository the token service needs.
type TokenStore interface {
	TokenExists(ctx context.Context, token string) (bool, error)
	GetInterviewByToken(ctx context.Context, token string) (*db.Interview, error)
}

// TokenService mints and resolves the opaque confirmation tokens that let a
// candidate pick a slot without logging in.
type TokenService struct {
	store TokenStore
}

// NewTokenService creates a token service backed by the given store.
func NewTokenService(store TokenStore) *TokenService {
	return &TokenService{store: store}
}

// Mint returns a fresh cryptographically random URL-safe token, checked
// against existing interviews so a token is never reused.
func (s *TokenService) Mint(ctx context.Context) (string, error) {
	// 256 bits of randomness makes a collision effectively impossible, but
	// the uniqueness check is cheap and the column is unique anyway.
	for attempt := 0; attempt < 3; attempt++ {
		buf := make([]byte, tokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		token := base64.RawURLEncoding.EncodeToString(buf)

		exists, err := s.store.TokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !exists {
			return token, nil
		}
	}
	return "", errors.New("generate token: exhausted uniqueness attempts")
}

// Resolve looks up the interview a token belongs to. An unknown token maps to
// ErrTokenNotFound; a token whose interview left the pending state maps to
// ErrTokenExpired, with the interview still returned so the confirmation page
// can explain what happened.
func (s *TokenService) Resolve(ctx context.Context, token string) (*db.Interview, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	iv, err := s.store.GetInterviewByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if iv.Status != db.StatusPending {
		return iv, ErrTokenExpired
	}
	return iv, nil
}
