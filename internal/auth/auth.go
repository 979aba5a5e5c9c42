// Package auth optionally protects the subscriber endpoints with JWT or
// API-key credentials. Disabled by default; the pipeline itself never
// depends on it.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"obd-go-gateway/internal/config"
)

// Manager handles authentication for the HTTP surface.
type Manager struct {
	cfg config.AuthConfig
}

// Claims represents JWT claims issued by the login endpoint.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Enabled reports whether requests must carry credentials.
func (m *Manager) Enabled() bool { return m.cfg.Enabled }

// GenerateJWT creates a new token for an authenticated user.
func (m *Manager) GenerateJWT(username, role string) (string, error) {
	expirationTime := time.Now().Add(time.Duration(m.cfg.JWTExpiration) * time.Minute)

	claims := &Claims{
		Username: username,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
			IssuedAt:  time.Now().Unix(),
			Issuer:    "obd-gateway",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.cfg.JWTSecret))
}

// ValidateJWT parses and validates a token string.
func (m *Manager) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ValidateAPIKey checks a key against the configured set in constant time.
func (m *Manager) ValidateAPIKey(apiKey string) bool {
	for _, validKey := range m.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return true
		}
	}
	return false
}

// AuthenticateUser validates username and password against the configured
// users and returns the user's role.
func (m *Manager) AuthenticateUser(username, password string) (string, error) {
	for _, user := range m.cfg.Users {
		if user.Username == username {
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				return "", errors.New("invalid password")
			}
			return user.Role, nil
		}
	}
	return "", errors.New("user not found")
}

// HashPassword creates a bcrypt hash for use in the users config section.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

// Middleware guards an endpoint when auth is enabled. Credentials may arrive
// as a Bearer token, a token query parameter (websocket clients cannot set
// headers from browsers) or an X-API-Key header.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			if m.ValidateAPIKey(apiKey) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			http.Error(w, "Credentials required", http.StatusUnauthorized)
			return
		}

		if _, err := m.ValidateJWT(tokenString); err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
