// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

func staticTokens(tok string) *TokenCache {
	return NewTokenCache(TokenSourceFunc(func(context.Context) (string, error) {
		return tok, nil
	}))
}

func newTestClient(t *testing.T, h http.Handler, tokens *TokenCache, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	opts.HTTPClient = srv.Client()
	return NewClient(tokens, opts)
}

func TestClient_AttachesBearerAndJSON(t *testing.T) {
	var gotAuth, gotType, gotPath string
	var gotBody model.QueryRequest
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"conversation_id":"c1","message_id":1,"answer":"ok","needs_approval":false}`))
	})
	c := newTestClient(t, h, staticTokens("tok-1"), Options{})

	resp, err := c.Query(context.Background(), model.QueryRequest{Text: "hi", DepartmentID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "/api/v1/query", gotPath)
	assert.Equal(t, "hi", gotBody.Text)
	assert.Equal(t, model.ID("c1"), resp.ConversationID)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	var hadAuth atomic.Bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["Authorization"]
		hadAuth.Store(ok)
		w.Write([]byte(`{"data":[]}`))
	})
	c := newTestClient(t, h, staticTokens(""), Options{})

	_, err := c.ListApprovals(context.Background(), model.ApprovalPending)
	require.NoError(t, err)
	assert.False(t, hadAuth.Load())
}

func TestClient_MultipartKeepsBoundary(t *testing.T) {
	var title, fileBody string
	var mediaType string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		assert.NoError(t, err)
		mediaType = mt
		assert.NotEmpty(t, params["boundary"])

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		title = r.FormValue("title")
		if f, _, err := r.FormFile("file"); assert.NoError(t, err) {
			data, _ := io.ReadAll(f)
			fileBody = string(data)
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"doc1","title":"VPN","status":"processing","chunk_count":0}`))
	})
	c := newTestClient(t, h, staticTokens("tok"), Options{})

	doc, err := c.UploadDocument(context.Background(), "d1", "VPN", "vpn.md", strings.NewReader("# VPN"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.Equal(t, "VPN", title)
	assert.Equal(t, "# VPN", fileBody)
	assert.Equal(t, model.ID("doc1"), doc.ID)
}

func TestClient_UnauthorizedBurstRedirectsOnce(t *testing.T) {
	const n = 10
	var arrived sync.WaitGroup
	arrived.Add(n)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold every response until all requests were sent under one token.
		arrived.Done()
		arrived.Wait()
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token expired"}`))
	})

	tokens := staticTokens("")
	tokens.Set("expired")
	var redirects atomic.Int32
	c := newTestClient(t, h, tokens, Options{OnUnauthorized: func() { redirects.Add(1) }})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.ListConversations(context.Background(), "", 10)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), redirects.Load(), "exactly one redirect per burst")
	_, ok := tokens.Cached()
	assert.False(t, ok, "token cache is empty after a 401")
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrUnauthorized, "the error still reaches every caller")
		assert.Equal(t, "Token expired", ErrorDetail(err))
	}
}

func TestClient_ForbiddenAndServerErrorsAreLoggedAndPropagated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var status atomic.Int32
	status.Store(http.StatusForbidden)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"detail":"nope"}`))
	})
	var redirects atomic.Int32
	c := newTestClient(t, h, staticTokens("tok"), Options{
		Logger:         zap.New(core),
		OnUnauthorized: func() { redirects.Add(1) },
	})

	_, err := c.ListUsers(context.Background())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, logs.FilterMessage("access forbidden").Len())

	status.Store(http.StatusInternalServerError)
	_, err = c.ListUsers(context.Background())
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, 1, logs.FilterMessage("server error").Len())

	assert.Zero(t, redirects.Load())
	tok, ok := c.Tokens().Cached()
	assert.True(t, ok)
	assert.Equal(t, "tok", tok, "403 and 500 leave the session alone")
}

func TestClient_QueryTimeout(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := newTestClient(t, h, staticTokens("tok"), Options{QueryTimeout: 50 * time.Millisecond})

	_, err := c.Query(context.Background(), model.QueryRequest{Text: "slow", DepartmentID: "d1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotEmpty(t, ErrorDetail(err))
}

func TestClient_LoginFailureSurfacesDetail(t *testing.T) {
	var gateway atomic.Bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		if gateway.Load() {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`<html>bad gateway</html>`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid email or password"}`))
	})
	var redirects atomic.Int32
	c := newTestClient(t, h, staticTokens(""), Options{OnUnauthorized: func() { redirects.Add(1) }})

	_, err := c.Login(context.Background(), "a@b.c", "bad")
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, "Invalid email or password", ErrorDetail(err))
	assert.Zero(t, redirects.Load(), "a failed login is not a session expiry")

	gateway.Store(true)
	_, err = c.Login(context.Background(), "a@b.c", "bad")
	assert.Equal(t, "Authentication failed", ErrorDetail(err))
}

func TestClient_LoginInstallsToken(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			w.Write([]byte(`{"access_token":"new-tok","expires_in":3600,"user":{"id":"u1","email":"a@b.c","name":"A","role":"admin","tenant_id":"t1","tenant_name":"Acme","departments":[]}}`))
		default:
			assert.Equal(t, "Bearer new-tok", r.Header.Get("Authorization"))
			w.Write([]byte(`[]`))
		}
	})
	c := newTestClient(t, h, staticTokens(""), Options{})

	resp, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Acme", resp.User.TenantName)

	_, err = c.ListAPIKeys(context.Background())
	require.NoError(t, err)
}

func TestClient_DepartmentsMemoised(t *testing.T) {
	var hits atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			hits.Add(1)
			w.Write([]byte(`{"data":[{"id":"d1","name":"IT","slug":"it"}],"pagination":{"page":1}}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	c := newTestClient(t, h, staticTokens("tok"), Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		depts, err := c.ListDepartments(ctx)
		require.NoError(t, err)
		require.Len(t, depts, 1)
		assert.Equal(t, "IT", depts[0].Name)
	}
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, c.ArchiveDepartment(ctx, "d1"))
	_, err := c.ListDepartments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "a mutation invalidates the memo")
}

func TestClient_TrainingStatusUnknownJob(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.Write([]byte(`{"error":"Job not found"}`))
			return
		}
		w.Write([]byte(`{"status":"running","progress":30}`))
	})
	c := newTestClient(t, h, staticTokens("tok"), Options{})

	_, err := c.TrainingStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, err := c.TrainingStatus(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, model.JobRunning, job.Status)
	assert.Equal(t, 30, job.Progress)
}

func TestClient_PathSegmentsEscaped(t *testing.T) {
	var got string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, h, staticTokens("tok"), Options{})
	require.NoError(t, c.DeleteConversation(context.Background(), "a/b"))
	assert.Equal(t, "/api/v1/conversations/a%2Fb", got)
}

func TestClient_RateLimiterRespectsContext(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	c := newTestClient(t, h, staticTokens("tok"), Options{RequestsPerSecond: 0.001, Burst: 1})

	_, err := c.ListUsers(context.Background())
	require.NoError(t, err, "burst allows the first request")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListUsers(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}
