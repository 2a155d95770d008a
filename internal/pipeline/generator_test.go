package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/outreachd/internal/store"
)

func TestHTTPGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "email", req.StepKey)
		assert.Equal(t, "formal", req.Context["tone"])

		json.NewEncoder(w).Encode(generateResponse{
			Document: store.Document{"subject": "hello"},
		})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, 5*time.Second)
	doc, err := gen.Generate(context.Background(), "email", store.Document{"tone": "formal"})
	require.NoError(t, err)
	assert.Equal(t, "hello", doc["subject"])
}

func TestHTTPGenerator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, 5*time.Second)
	_, err := gen.Generate(context.Background(), "email", store.Document{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPGenerator_EmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, 5*time.Second)
	_, err := gen.Generate(context.Background(), "email", store.Document{})
	assert.Error(t, err)
}
