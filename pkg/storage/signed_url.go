// Package storage issues signed, expiring references to stored document
// content. The bytes themselves live in an external object store.
package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// Grant is what a download token authorises: one version of one document.
type Grant struct {
	DocumentID       string
	Version          string
	ContentReference string
	ExpiresAt        time.Time
}

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token for the version's content.
func (s *SignedURLSigner) Generate(documentID, version, contentRef string) (string, time.Time, error) {
	if documentID == "" || version == "" || contentRef == "" {
		return "", time.Time{}, fmt.Errorf("documentID, version and content reference required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	payload := strings.Join([]string{
		encode(documentID),
		encode(version),
		encode(contentRef),
		strconv.FormatInt(expiresAt.Unix(), 10),
	}, ".")
	return payload + "." + s.sign(payload), expiresAt, nil
}

// Parse validates a token and returns its grant.
func (s *SignedURLSigner) Parse(token string) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 5 {
		return Grant{}, ErrInvalidToken
	}
	payload := strings.Join(parts[:4], ".")
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[4])) {
		return Grant{}, ErrInvalidToken
	}

	fields := make([]string, 3)
	for i := range fields {
		raw, err := base64.RawURLEncoding.DecodeString(parts[i])
		if err != nil {
			return Grant{}, ErrInvalidToken
		}
		fields[i] = string(raw)
	}
	exp, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	grant := Grant{DocumentID: fields[0], Version: fields[1], ContentReference: fields[2], ExpiresAt: time.Unix(exp, 0).UTC()}
	if s.now().After(grant.ExpiresAt) {
		return Grant{}, ErrTokenExpired
	}
	return grant, nil
}

// URL joins a base URL and token into a download link.
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + token
}

func (s *SignedURLSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}
