package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
)

// ============================================================
// Session cookie: sealed, opaque session ID
// ============================================================

const sessionCookieName = "kardex_session"

// Sealer encrypts and authenticates the session cookie value so clients
// can neither read nor forge session IDs.
type Sealer struct {
	key [32]byte
}

// NewSealer builds a sealer from a 64-hex-char key. An empty key yields
// a random per-boot key, which invalidates cookies across restarts; the
// persisted session store is what survives those.
func NewSealer(hexKey string) (*Sealer, error) {
	s := &Sealer{}
	if hexKey == "" {
		if _, err := rand.Read(s.key[:]); err != nil {
			return nil, err
		}
		return s, nil
	}

	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != len(s.key) {
		return nil, errors.New("cookie seal key must be 64 hex characters")
	}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns base64(nonce || box) for the given value.
func (s *Sealer) Seal(value string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Tampered or foreign cookies come back (_, false).
func (s *Sealer) Open(sealed string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24 {
		return "", false
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	out, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", false
	}
	return string(out), true
}

type ctxKey string

const sessionIDKey ctxKey = "sessionID"

// SessionIDFromContext returns the session ID attached by SessionCookie.
func SessionIDFromContext(ctx context.Context) string {
	if sid, ok := ctx.Value(sessionIDKey).(string); ok {
		return sid
	}
	return ""
}

// SessionCookie attaches a stable session ID to every request. A valid
// sealed cookie keeps its ID; anything else gets a fresh one and a new
// cookie on the response.
func SessionCookie(sealer *Sealer, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(sessionCookieName); err == nil {
				if opened, ok := sealer.Open(c.Value); ok {
					sid = opened
				}
			}

			if sid == "" {
				sid = uuid.New().String()
				sealed, err := sealer.Seal(sid)
				if err != nil {
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    sealed,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
