// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package auth issues and verifies the bearer credentials a session
// presents on the websocket upgrade, and serves the HTTP login surface
// in front of them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linkrelay/linkrelay/internal/domain"
)

var (
	// ErrInvalidToken covers every verification failure: bad signature,
	// expiry, malformed claims. Callers never learn which.
	ErrInvalidToken = errors.New("invalid token")
)

// JWTManager signs and verifies HS256 bearer tokens. The identity rides
// in the uid claim; nothing else about the account is encoded.
type JWTManager struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewJWTManager creates a manager with the given signing secret and
// token lifetime.
func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Issue creates a signed token binding the identity for the configured
// lifetime.
func (m *JWTManager) Issue(id domain.Identity) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UID: string(id),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the bound identity. The identity
// from a verified token is the only identity a session ever acts as.
func (m *JWTManager) Verify(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok {
		return "", ErrInvalidToken
	}
	id := domain.Identity(c.UID)
	if !id.Valid() {
		return "", ErrInvalidToken
	}
	return id, nil
}
