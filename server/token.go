package server

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenCost is the bcrypt cost used when hashing a plaintext API token.
const DefaultTokenCost = 12

var (
	ErrEmptyToken    = errors.New("server: token cannot be empty")
	ErrTokenMismatch = errors.New("server: token does not match")
	ErrInvalidHash   = errors.New("server: invalid token hash")
)

// HashToken returns the bcrypt hash of token.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultTokenCost)
}

// HashTokenWithCost is HashToken with an explicit bcrypt cost.
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken compares token with a bcrypt hash. Any bcrypt failure is
// reported as ErrTokenMismatch.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// ValidateHash checks that hash is a bcrypt hash.
func ValidateHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return ErrInvalidHash
	}
	return nil
}
