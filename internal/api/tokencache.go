// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TokenSource looks up the bearer token of the current login. An empty
// token with a nil error means "not logged in".
type TokenSource interface {
	LookupToken(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// LookupToken calls f.
func (f TokenSourceFunc) LookupToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// TokenCache memoises the bearer token for outgoing requests.
//
// CONCURRENCY: while the cache is cold, concurrent callers share a single
// lookup. Every state change advances the generation, and lookups are keyed
// by the generation they started under, so a lookup that finishes after
// Clear can never repopulate the cache.
type TokenCache struct {
	src   TokenSource
	group singleflight.Group

	mu       sync.Mutex
	token    string
	resolved bool
	gen      uint64
}

// NewTokenCache creates an empty cache backed by src.
func NewTokenCache(src TokenSource) *TokenCache {
	return &TokenCache{src: src}
}

// Token returns the cached token, looking it up on a cold cache.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	tok, _, err := c.TokenWithGeneration(ctx)
	return tok, err
}

// TokenWithGeneration returns the token together with the generation it
// belongs to. Requests remember the generation so a later 401 can
// invalidate exactly the state they were sent with.
func (c *TokenCache) TokenWithGeneration(ctx context.Context) (string, uint64, error) {
	c.mu.Lock()
	if c.resolved {
		tok, gen := c.token, c.gen
		c.mu.Unlock()
		return tok, gen, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// The shared lookup must not die with whichever caller started it.
	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		tok, err := c.src.LookupToken(lookupCtx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.token = tok
			c.resolved = true
		}
		c.mu.Unlock()
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", gen, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", gen, res.Err
		}
		return res.Val.(string), gen, nil
	}
}

// Set installs a token obtained by an explicit login.
func (c *TokenCache) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.resolved = true
	c.gen++
}

// Clear empties the cache and abandons any in-flight lookup.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// InvalidateIfCurrent clears the cache only if it is still at generation
// gen, and reports whether it did. Of all requests rejected with 401 under
// the same generation, exactly one gets true.
func (c *TokenCache) InvalidateIfCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.clearLocked()
	return true
}

// Generation returns the current cache generation.
func (c *TokenCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Cached returns the cached token without triggering a lookup.
func (c *TokenCache) Cached() (token string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.resolved
}

func (c *TokenCache) clearLocked() {
	c.token = ""
	c.resolved = false
	c.gen++
}
