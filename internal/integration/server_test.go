package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tije-csv/RAG-2.2/internal/config"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
	"github.com/Tije-csv/RAG-2.2/internal/server"
)

const adminKey = "integration-key"

func offlineConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	cfg.Generation.Provider = "echo"
	cfg.Classifier.Mode = "pattern"
	cfg.Cache.Backend = "memory"
	return cfg
}

func openRuntime(t *testing.T, root string) *pipeline.Runtime {
	t.Helper()
	rt, err := pipeline.Open(context.Background(), offlineConfig(), root, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func post(t *testing.T, url string, body any, key string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type queryResult struct {
	Answer        string `json:"answer"`
	Path          string `json:"path"`
	Cached        bool   `json:"cached"`
	RetrievedDocs []struct {
		Text     string `json:"text"`
		Metadata struct {
			Source string `json:"source"`
		} `json:"metadata"`
	} `json:"retrieved_docs"`
}

func TestHTTP_AddDocumentsThenQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a server over an empty corpus and a directory of notes
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "france.txt"), []byte("Paris is the capital of France."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "japan.txt"), []byte("Tokyo is the capital of Japan."), 0o644))

	rt := openRuntime(t, root)
	srv := httptest.NewServer(server.New(rt, server.Config{AdminKey: adminKey, Metrics: rt.Metrics, Logger: logging.Nop()}).Handler())
	defer srv.Close()

	// When: the directory and one inline document are added over the admin route
	resp := post(t, srv.URL+"/admin/documents", map[string]any{
		"directory_path": notes,
		"documents":      []map[string]string{{"content": "Ottawa is the capital of Canada.", "source": "inline-canada"}},
	}, adminKey)

	// Then: all three are stored
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var added struct {
		Added int `json:"added"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	assert.Equal(t, 3, added.Added)

	// When: a factual question is asked twice
	first := post(t, srv.URL+"/query", map[string]string{"text": "What is the capital of Japan?"}, "")
	second := post(t, srv.URL+"/query", map[string]string{"text": "What is the capital of Japan?"}, "")

	// Then: retrieval ranks the Japan note first and the repeat is cached
	require.Equal(t, http.StatusOK, first.StatusCode)
	var q1, q2 queryResult
	require.NoError(t, json.NewDecoder(first.Body).Decode(&q1))
	require.NoError(t, json.NewDecoder(second.Body).Decode(&q2))
	assert.Equal(t, "rag", q1.Path)
	require.NotEmpty(t, q1.RetrievedDocs)
	assert.True(t, strings.HasSuffix(q1.RetrievedDocs[0].Metadata.Source, "japan.txt"), q1.RetrievedDocs[0].Metadata.Source)
	assert.False(t, q1.Cached)
	assert.True(t, q2.Cached)
	assert.Equal(t, q1.Answer, q2.Answer)
}

func TestHTTP_AdminRoutesNeedKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a server with an admin key
	rt := openRuntime(t, t.TempDir())
	srv := httptest.NewServer(server.New(rt, server.Config{AdminKey: adminKey, Logger: logging.Nop()}).Handler())
	defer srv.Close()
	body := map[string]any{"documents": []map[string]string{{"content": "unauthorized"}}}

	// When: documents are posted without the key on both admin routes
	modern := post(t, srv.URL+"/admin/documents", body, "")
	legacy := post(t, srv.URL+"/admin/add-documents", body, "")

	// Then: both are refused and nothing is stored
	assert.Equal(t, http.StatusForbidden, modern.StatusCode)
	assert.Equal(t, http.StatusForbidden, legacy.StatusCode)
	stats, err := rt.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocumentCount)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a server with metrics enabled that has answered one query
	rt := openRuntime(t, t.TempDir())
	srv := httptest.NewServer(server.New(rt, server.Config{Metrics: rt.Metrics, Logger: logging.Nop()}).Handler())
	defer srv.Close()
	_ = post(t, srv.URL+"/query", map[string]string{"text": "What is missing?"}, "")

	// When: health and metrics are fetched
	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = health.Body.Close() }()
	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = metricsResp.Body.Close() }()

	// Then: both respond and the query was counted
	assert.Equal(t, http.StatusOK, health.StatusCode)
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "rag_queries_total")
}
