package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

type queryRequest struct {
	Text string `json:"text"`
}

type addDocumentsRequest struct {
	FilePaths     []string      `json:"file_paths"`
	DirectoryPath string        `json:"directory_path"`
	Documents     []store.Input `json:"documents"`
}

type addDocumentsResponse struct {
	Message string `json:"message"`
	Added   int    `json:"added"`
}

type errorResponse struct {
	Detail     string `json:"detail"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Metrics   map[string]int64  `json:"metrics,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "text is required", Code: rerrors.ErrCodeQueryEmpty})
		return
	}

	resp, err := s.engine.ProcessQuery(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.FilePaths) == 0 && req.DirectoryPath == "" && len(req.Documents) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: "one of file_paths, directory_path or documents is required",
			Code:   rerrors.ErrCodeInvalidInput,
		})
		return
	}

	added := 0
	if len(req.FilePaths) > 0 || req.DirectoryPath != "" {
		var dirs []string
		if req.DirectoryPath != "" {
			dirs = []string{req.DirectoryPath}
		}
		n, err := s.engine.IngestPaths(r.Context(), req.FilePaths, dirs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		added += n
	}
	if len(req.Documents) > 0 {
		n, err := s.engine.AddDocuments(r.Context(), req.Documents)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		added += n
	}
	writeJSON(w, http.StatusOK, addDocumentsResponse{Message: "Documents added successfully", Added: added})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC().Format(time.RFC3339)
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: now,
			Services:  map[string]string{"document_store": "unhealthy", "rag_pipeline": "healthy"},
			Error:     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: now,
		Services:  map[string]string{"document_store": "healthy", "rag_pipeline": "healthy"},
		Metrics: map[string]int64{
			"total_documents":     int64(stats.DocumentCount),
			"total_queries":       stats.TotalQueries,
			"cached_queries":      int64(stats.CachedQueryCount),
			"pending_vectors":     int64(stats.PendingVectors),
			"dense_index_vectors": int64(stats.DenseVectors),
		},
	})
}

// decode reads a JSON body into dst, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid json: " + err.Error(), Code: rerrors.ErrCodeInvalidInput})
		return false
	}
	return true
}

// writeError maps err onto a status code and a JSON body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Detail: err.Error()}
	var re *rerrors.RAGError
	if errors.As(err, &re) {
		body.Detail = re.Message
		body.Code = re.Code
		body.Suggestion = re.Suggestion
	}
	if status >= http.StatusInternalServerError {
		attrs := append([]any{slog.String("request_id", requestIDFromContext(r.Context()))}, rerrors.LogAttrs(err)...)
		s.logger.Error("request failed", attrs...)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch rerrors.GetCode(err) {
	case rerrors.ErrCodeQueryEmpty, rerrors.ErrCodeInvalidInput, rerrors.ErrCodeInvalidPath,
		rerrors.ErrCodeFileNotFound, rerrors.ErrCodeUnsupportedMediaType:
		return http.StatusBadRequest
	case rerrors.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case rerrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case rerrors.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case rerrors.ErrCodeGenerationTimeout:
		return http.StatusGatewayTimeout
	}
	if rerrors.GetCategory(err) == rerrors.CategoryValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
