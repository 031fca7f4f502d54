// Package auth implements optional HTTP basic authentication. Credentials
// come from the secrets file; when none are configured, authentication is
// disabled and the middleware passes everything through.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrUsernameRequired is returned when a password is configured without a
// username.
var ErrUsernameRequired = errors.New("auth: basic_auth_username が設定されていません")

// Config holds the expected credentials. The zero value means disabled.
type Config struct {
	Username     string
	PasswordHash string // lowercase hex SHA-256
}

// Enabled reports whether credentials are configured.
func (c Config) Enabled() bool {
	return c.Username != "" && c.PasswordHash != ""
}

// Resolve builds a Config from secret values. password_hash wins over a raw
// password; with neither, auth is disabled. A configured password without a
// username is a setup error.
func Resolve(username, password, passwordHash string) (Config, error) {
	var resolved string
	switch {
	case strings.TrimSpace(passwordHash) != "":
		resolved = strings.ToLower(strings.TrimSpace(passwordHash))
	case strings.TrimSpace(password) != "":
		resolved = HashPassword(strings.TrimSpace(password))
	default:
		return Config{}, nil
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return Config{}, ErrUsernameRequired
	}
	return Config{Username: username, PasswordHash: resolved}, nil
}

// HashPassword returns the hex SHA-256 of a raw password.
func HashPassword(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ParseAuthorization decodes a "Basic <base64>" header into credentials.
// Malformed headers return ok=false; base64 decoding is strict.
func ParseAuthorization(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.Strict().DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}

	creds := string(decoded)
	i := strings.Index(creds, ":")
	if i < 0 {
		return "", "", false
	}
	return creds[:i], creds[i+1:], true
}

// Match compares provided credentials against the configuration. The
// password comparison is constant time over the hashes.
func Match(user, pass string, cfg Config) bool {
	if !cfg.Enabled() || user != cfg.Username {
		return false
	}
	return hmac.Equal([]byte(HashPassword(pass)), []byte(cfg.PasswordHash))
}

// Middleware enforces basic auth for every request when the configuration
// is enabled; otherwise it is a pass-through.
func Middleware(cfg Config, next http.Handler) http.Handler {
	if !cfg.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := ParseAuthorization(r.Header.Get("Authorization"))
		if !ok || !Match(user, pass, cfg) {
			slog.Debug("auth: rejected request", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Basic realm="contractintake"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
