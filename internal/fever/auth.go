package fever

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/bryan-buckman/feverd/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the cost factor for API key hashes.
const bcryptCost = 10

// APIKey returns the key a Fever client sends for username and its API
// password: the lowercase hex md5 of "username:password".
func APIKey(username, password string) string {
	sum := md5.Sum([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// HashAPIKey returns the bcrypt hash stored for key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// AuthGate resolves a presented API key to a user.
type AuthGate struct {
	credentials Credentials
}

// NewAuthGate returns an AuthGate backed by credentials.
func NewAuthGate(credentials Credentials) *AuthGate {
	return &AuthGate{credentials: credentials}
}

// Authenticate returns the first user whose stored hash verifies key, or
// nil when key is empty or matches nobody. Only a credential store failure
// produces an error.
func (g *AuthGate) Authenticate(key string) (*model.User, error) {
	if key == "" {
		return nil, nil
	}
	users, err := g.credentials.GetAPIUsers()
	if err != nil {
		return nil, fmt.Errorf("list api users: %w", err)
	}
	for i := range users {
		u := users[i]
		if u.APIPasswordHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.APIPasswordHash), []byte(key)) == nil {
			return &u, nil
		}
	}
	return nil, nil
}
