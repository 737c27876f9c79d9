// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoSession is returned when there is no usable saved login.
	ErrNoSession = errors.New("not logged in")

	// ErrNoSecret is returned when the store is built without a signing secret.
	ErrNoSecret = errors.New("session secret is not configured")
)

const issuer = "kops"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a saved login.
type Session struct {
	Token     string
	User      model.User
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
	AccessToken string     `json:"tok"`
	User        model.User `json:"usr"`
}

// =============================================================================
// STORE
// =============================================================================

// Store reads and writes the signed session file.
type Store struct {
	path   string
	secret []byte
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a store for the session file at path.
func NewStore(path, secret string, maxAge time.Duration, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Store{
		path:   path,
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
		logger: logging.OrNop(logger).Named("session"),
	}, nil
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Save signs the login response and writes it atomically with 0600
// permissions. The session expires after the configured max age, or earlier
// when the backend reports a shorter token lifetime.
func (s *Store) Save(resp model.LoginResponse) (*Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login response has no access token")
	}

	now := s.now()
	expires := now.Add(s.maxAge)
	if resp.ExpiresIn > 0 {
		if backend := now.Add(time.Duration(resp.ExpiresIn) * time.Second); backend.Before(expires) {
			expires = backend
		}
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   resp.User.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		AccessToken: resp.AccessToken,
		User:        resp.User,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, []byte(signed), 0600); err != nil {
		return nil, fmt.Errorf("failed to write session: %w", err)
	}

	s.logger.Info("session saved", zap.String("user_id", resp.User.ID.String()), zap.Time("expires_at", expires))
	return &Session{Token: resp.AccessToken, User: resp.User, ExpiresAt: expires}, nil
}

// Load reads and verifies the session file. A missing, expired, tampered or
// malformed file yields ErrNoSession.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var c claims
	_, err = jwt.ParseWithClaims(strings.TrimSpace(string(data)), &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("session rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if c.AccessToken == "" {
		return nil, fmt.Errorf("%w: session has no access token", ErrNoSession)
	}

	return &Session{Token: c.AccessToken, User: c.User, ExpiresAt: c.ExpiresAt.Time}, nil
}

// Clear removes the session file. Clearing a missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	s.logger.Info("session cleared")
	return nil
}

// LookupToken returns the saved bearer token, or "" when there is no valid
// session. Only I/O failures other than "no session" are returned as errors.
func (s *Store) LookupToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sess, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return "", nil
		}
		return "", err
	}
	return sess.Token, nil
}
