// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package training

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// catalogServer is an in-memory training catalog.
type catalogServer struct {
	mu         sync.Mutex
	failTarget bool
	posted     map[string][]map[string]any
	puts       map[string]map[string]any
}

func newCatalogServer() *catalogServer {
	return &catalogServer{posted: map[string][]map[string]any{}, puts: map[string]map[string]any{}}
}

func (s *catalogServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/training/methods":
		w.Write([]byte(`[{"id":"m1","name":"LoRA","method_key":"lora","default_config":{"lora_r":16}}]`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/training/base-models":
		w.Write([]byte(`{"data":[{"id":"b1","model_name":"tiny","display_name":"Tiny"}]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/training/targets":
		w.Write([]byte(`[]`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/training/registry":
		w.Write([]byte(`{"trainers":["lora"],"deployers":["ollama"]}`))
	case r.Method == http.MethodPost:
		s.posted[r.URL.Path] = append(s.posted[r.URL.Path], body)
		if s.failTarget && r.URL.Path == "/api/v1/training/targets" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail":"db down"}`))
			return
		}
		body["id"] = "new"
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodPut:
		s.puts[r.URL.Path] = body
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *catalogServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posted[path])
}

func newCatalog(t *testing.T, srv *catalogServer) *Catalog {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	tokens := api.NewTokenCache(api.TokenSourceFunc(func(context.Context) (string, error) { return "tok", nil }))
	return NewCatalog(api.NewClient(tokens, api.Options{BaseURL: ts.URL, HTTPClient: ts.Client()}), nil)
}

func TestCatalogLoad(t *testing.T) {
	c := newCatalog(t, newCatalogServer())

	contents, err := c.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, contents.Methods, 1)
	assert.Equal(t, "lora", contents.Methods[0].MethodKey)
	require.Len(t, contents.BaseModels, 1)
	assert.Equal(t, "Tiny", contents.BaseModels[0].DisplayName)
	assert.Empty(t, contents.Targets)
	assert.Equal(t, []string{"ollama"}, contents.Registry.Deployers)
}

func TestCatalogQuickSetup(t *testing.T) {
	srv := newCatalogServer()
	c := newCatalog(t, srv)

	res := c.QuickSetup(context.Background())
	assert.Equal(t, 3, res.Created)
	assert.Empty(t, res.Failed)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, srv.count("/api/v1/training/methods"))
	assert.Equal(t, 1, srv.count("/api/v1/training/base-models"))
	assert.Equal(t, 1, srv.count("/api/v1/training/targets"))

	method := srv.posted["/api/v1/training/methods"][0]
	assert.Equal(t, "lora", method["method_key"])
	assert.Equal(t, map[string]any{"lora_r": 16.0, "lora_alpha": 32.0, "lora_dropout": 0.05}, method["default_config"])
}

func TestCatalogQuickSetupPartialFailure(t *testing.T) {
	srv := newCatalogServer()
	srv.failTarget = true
	c := newCatalog(t, srv)

	res := c.QuickSetup(context.Background())
	assert.Equal(t, 2, res.Created)
	require.Contains(t, res.Failed, "target")
	assert.Equal(t, "db down", api.ErrorDetail(res.Failed["target"]))
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, res.Failed["target"])
	assert.Contains(t, res.Err.Error(), "target: ")
	assert.Equal(t, "created 2 catalog entries, failed: target", res.String())
}

func TestCatalogValidatesBeforeSending(t *testing.T) {
	srv := newCatalogServer()
	c := newCatalog(t, srv)
	ctx := context.Background()

	_, err := c.AddMethod(ctx, model.TrainingMethod{Name: "LoRA", MethodKey: MethodLoRA, DefaultConfig: map[string]any{"lora_dropout": 2}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = c.AddBaseModel(ctx, model.BaseModel{ModelName: "x"})
	assert.ErrorContains(t, err, "display_name")

	_, err = c.AddTarget(ctx, model.DeploymentTarget{Name: "Ollama", TargetKey: TargetOllama, Config: map[string]any{"num_ctx": -1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = c.UpdateMethod(ctx, "m1", MethodLoRA, map[string]any{"default_config": "nope"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = c.UpdateTarget(ctx, "t1", TargetOllama, map[string]any{"config": map[string]any{"temperature": 3}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Zero(t, srv.count("/api/v1/training/methods"))
	assert.Zero(t, srv.count("/api/v1/training/base-models"))
	assert.Zero(t, srv.count("/api/v1/training/targets"))
}

func TestCatalogUpdateAndRemove(t *testing.T) {
	srv := newCatalogServer()
	c := newCatalog(t, srv)
	ctx := context.Background()

	m, err := c.UpdateMethod(ctx, "m1", MethodLoRA, map[string]any{"default_config": map[string]any{"lora_r": 8}})
	require.NoError(t, err)
	assert.Equal(t, 8.0, m.DefaultConfig["lora_r"])

	_, err = c.UpdateBaseModel(ctx, "b1", map[string]any{"display_name": "Tiny v2"})
	require.NoError(t, err)
	assert.Equal(t, "Tiny v2", srv.puts["/api/v1/training/base-models/b1"]["display_name"])

	require.NoError(t, c.RemoveMethod(ctx, "m1"))
	require.NoError(t, c.RemoveBaseModel(ctx, "b1"))
	require.NoError(t, c.RemoveTarget(ctx, "t1"))
}
