// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package login

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/session"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
)

type fakeAuth struct {
	email, password string
	err             error
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*model.LoginResponse, error) {
	f.email, f.password = email, password
	if f.err != nil {
		return nil, f.err
	}
	return &model.LoginResponse{AccessToken: "tok", User: model.User{Email: email, Name: "Ann"}}, nil
}

type fakeStore struct {
	saved []model.LoginResponse
	err   error
}

func (f *fakeStore) Save(resp model.LoginResponse) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.saved = append(f.saved, resp)
	return &session.Session{Token: resp.AccessToken, User: resp.User}, nil
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

// result runs the login command out of the submit batch.
func result(t *testing.T, cmd tea.Cmd) resultMsg {
	t.Helper()
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		if r, ok := c().(resultMsg); ok {
			return r
		}
	}
	t.Fatal("no login result in batch")
	return resultMsg{}
}

func fill(m Model) (Model, tea.Cmd) {
	m = typeText(m, "ann@acme.io")
	m, _ = press(m, tea.KeyEnter)
	m = typeText(m, "hunter2")
	return press(m, tea.KeyEnter)
}

func TestLoginSuccessSavesSession(t *testing.T) {
	auth, store := &fakeAuth{}, &fakeStore{}
	m := New(context.Background(), auth, store, styles.NewTheme(styles.ModeDark), "http://localhost:8000")

	m, cmd := fill(m)
	assert.True(t, m.Busy())

	next, done := m.Update(result(t, cmd))
	m = next.(Model)
	assert.False(t, m.Busy())
	assert.Equal(t, "ann@acme.io", auth.email)
	assert.Equal(t, "hunter2", auth.password)
	require.Len(t, store.saved, 1)

	require.NotNil(t, done)
	assert.Equal(t, LoggedInMsg{User: model.User{Email: "ann@acme.io", Name: "Ann"}}, done())
}

func TestLoginFailureShowsDetail(t *testing.T) {
	auth := &fakeAuth{err: fmt.Errorf("%w: %w", api.ErrLoginFailed, &api.APIError{Status: 401, Detail: "Invalid email or password"})}
	store := &fakeStore{}
	m := New(context.Background(), auth, store, styles.NewTheme(styles.ModeDark), "")

	m, cmd := fill(m)
	next, _ := m.Update(result(t, cmd))
	m = next.(Model)

	assert.Equal(t, "Invalid email or password", m.Err())
	assert.Empty(t, store.saved)
	assert.Contains(t, m.View(), "Invalid email or password")
}

func TestLoginSaveFailure(t *testing.T) {
	m := New(context.Background(), &fakeAuth{}, &fakeStore{err: errors.New("disk full")}, nil, "")
	m, cmd := fill(m)
	next, _ := m.Update(result(t, cmd))
	assert.Equal(t, "disk full", next.(Model).Err())
}

func TestLoginRequiresBothFields(t *testing.T) {
	m := New(context.Background(), &fakeAuth{}, &fakeStore{}, nil, "")
	m = typeText(m, "ann@acme.io")
	m, _ = press(m, tea.KeyTab)
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, "Email and password are required", m.Err())
}

func TestLoginPasswordIsMasked(t *testing.T) {
	m := New(context.Background(), &fakeAuth{}, &fakeStore{}, nil, "")
	m, _ = press(m, tea.KeyTab)
	m = typeText(m, "secret")
	assert.NotContains(t, m.View(), "secret")
}

func TestLoginNotice(t *testing.T) {
	m := New(context.Background(), &fakeAuth{}, &fakeStore{}, nil, "").WithNotice("Your session has expired")
	assert.Contains(t, m.View(), "Your session has expired")
}
