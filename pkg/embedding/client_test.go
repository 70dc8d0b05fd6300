package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestCreateEmbeddings_KeepsInputOrder(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, 3, req.Dimensions)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`))
	})
	client := NewClient(config.EmbeddingConfig{APIKey: "secret", BaseURL: url, Model: "m", Dimensions: 3})

	vectors, err := client.CreateEmbeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vectors)
}

func TestCreateEmbedding_DimensionMismatch(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	})
	client := NewClient(config.EmbeddingConfig{BaseURL: url, Dimensions: 3})

	_, err := client.CreateEmbedding(context.Background(), "q")
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestCreateEmbedding_ServerErrorIsTransient(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client := NewClient(config.EmbeddingConfig{BaseURL: url, Dimensions: 3})

	_, err := client.CreateEmbedding(context.Background(), "q")
	assert.ErrorIs(t, err, apperr.ErrTransient)
}

func TestCreateEmbeddings_Empty(t *testing.T) {
	client := NewClient(config.EmbeddingConfig{BaseURL: "http://unused", Dimensions: 3})
	vectors, err := client.CreateEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
