package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tije-csv/RAG-2.2/internal/config"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

func offlineConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Generation.Provider = "echo"
	return cfg
}

func newChecker(cfg *config.Config, root string) *Checker {
	return New(cfg, root, WithLogger(logging.Nop()))
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(9).String())
}

func TestCheckResult_JSONUsesStatusName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"WARN"`)
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"all pass", []CheckResult{{Status: StatusPass, Required: true}}, "ready"},
		{"warning", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"optional failure", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
		{"required failure", []CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SummaryStatus(tt.results))
			assert.Equal(t, tt.want == "failed", HasCriticalFailures(tt.results))
		})
	}
}

func TestRunAll_Offline(t *testing.T) {
	// Given: a project configured for static embeddings and echo generation
	root := t.TempDir()

	// When: all checks run
	results := newChecker(offlineConfig(), root).RunAll(context.Background())

	// Then: every check is reported, the data directory exists and nothing
	// required fails
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"data_dir", "disk_space", "file_descriptors", "embedder", "generator"}, names)
	assert.False(t, HasCriticalFailures(results))
	assert.DirExists(t, filepath.Join(root, ".rag"))
	assert.NoFileExists(t, filepath.Join(root, ".rag", ".preflight"))
}

func TestCheckDataDir_LockedIsWarning(t *testing.T) {
	// Given: a data directory held by another process
	dir := filepath.Join(t.TempDir(), ".rag")
	lock, err := store.LockDataDir(dir)
	require.NoError(t, err)
	defer func() { _ = lock.Unlock() }()

	// When: the data directory is checked
	result := newChecker(offlineConfig(), "").CheckDataDir(dir)

	// Then: it warns instead of failing
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())
}

func TestCheckDataDir_NotCreatable(t *testing.T) {
	// Given: a data directory path below a regular file
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	// When: the data directory is checked
	result := newChecker(offlineConfig(), "").CheckDataDir(filepath.Join(file, ".rag"))

	// Then: the required check fails
	assert.True(t, result.IsCritical())
}

func TestExistingParent(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, existingParent(filepath.Join(root, "a", "b")))
	assert.Equal(t, root, existingParent(root))
}

func TestCheckEmbedder_UnknownProviderFails(t *testing.T) {
	cfg := offlineConfig()
	cfg.Embeddings.Provider = "nope"

	result := newChecker(cfg, t.TempDir()).CheckEmbedder(context.Background())

	assert.True(t, result.IsCritical())
}

func TestCheckGenerator_OpenAIWithoutKey(t *testing.T) {
	cfg := offlineConfig()
	cfg.Generation.Provider = "openai"
	cfg.Generation.APIKey = ""

	result := newChecker(cfg, "").CheckGenerator(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.False(t, result.IsCritical())
}

func ollamaTags(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		type model struct {
			Name string `json:"name"`
		}
		body := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range models {
			body.Models = append(body.Models, model{Name: m})
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckGenerator_Ollama(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		pulled []string
		want   CheckStatus
	}{
		{"model pulled", "llama3.2", []string{"llama3.2:latest"}, StatusPass},
		{"tagged model pulled", "qwen3:0.6b", []string{"qwen3:0.6b"}, StatusPass},
		{"model missing", "llama3.2", []string{"mistral:latest"}, StatusWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: an Ollama server with some models pulled
			srv := ollamaTags(t, tt.pulled...)
			cfg := offlineConfig()
			cfg.Generation.Provider = "ollama"
			cfg.Generation.Host = srv.URL
			cfg.Generation.Model = tt.model

			// When: the generator is checked
			result := newChecker(cfg, "").CheckGenerator(context.Background())

			// Then: the status reflects whether the model is present
			assert.Equal(t, tt.want, result.Status, result.Message)
		})
	}
}

func TestCheckGenerator_OllamaUnreachable(t *testing.T) {
	// Given: an Ollama host that has gone away
	srv := ollamaTags(t)
	srv.Close()
	cfg := offlineConfig()
	cfg.Generation.Provider = "ollama"
	cfg.Generation.Host = srv.URL

	// When: the generator is checked
	result := newChecker(cfg, "").CheckGenerator(context.Background())

	// Then: it fails without being critical
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "unreachable")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2*1024*1024*1024))
}
