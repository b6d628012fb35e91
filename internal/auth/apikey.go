// Package auth guards mutating endpoints with an argon2id-hashed API key.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/argon2"

	"rentals/internal/logging"
)

const HeaderAPIKey = "X-API-Key"

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashKey generates a salted Argon2id hash of key. Both values are base64.
func HashKey(key string) (hash string, salt string, err error) {
	rawSalt := make([]byte, 16)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", err
	}

	sum := argon2.IDKey([]byte(key), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return base64.StdEncoding.EncodeToString(sum), base64.StdEncoding.EncodeToString(rawSalt), nil
}

// VerifyKey compares key with a salted hash produced by HashKey.
func VerifyKey(key, salt, hash string) (bool, error) {
	decodedSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	decodedHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	sum := argon2.IDKey([]byte(key), decodedSalt, argonTime, argonMemory, argonThreads, uint32(len(decodedHash)))

	return subtle.ConstantTimeCompare(decodedHash, sum) == 1, nil
}

// RequireAPIKey rejects requests whose API key does not match hash. The key
// is read from the X-API-Key header or a bearer Authorization header.
func RequireAPIKey(hash, salt string, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logging.Ensure(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFromRequest(r)
			if key == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}

			ok, err := VerifyKey(key, salt, hash)
			if err != nil {
				logger.ErrorContext(r.Context(), "api key verification failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if !ok {
				logger.WarnContext(r.Context(), "invalid api key", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func keyFromRequest(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
