// Package server exposes the document pipeline over HTTP and, optionally,
// as an MCP tool over stdio.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/docraghq/docrag/internal/composer"
	"github.com/docraghq/docrag/internal/embedder"
	"github.com/docraghq/docrag/internal/rag"
	"github.com/docraghq/docrag/internal/searcher"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

// Server serves the upload/build/ask/reset API.
type Server struct {
	svc    *rag.Service
	logger *slog.Logger
}

func New(svc *rag.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the routed HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /build", s.handleBuild)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return cors(mux)
}

type uploadResponse struct {
	Status      string `json:"status"`
	Files       int    `json:"files"`
	ChunksAdded int    `json:"chunks_added"`
	TotalChunks int    `json:"total_chunks"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files provided"))
		return
	}

	files := make([]rag.UploadFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("failed to open %s: %w", h.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read %s: %w", h.Filename, err))
			return
		}
		files = append(files, rag.UploadFile{Name: h.Filename, Data: data})
	}

	stats, err := s.svc.Upload(r.Context(), files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:      "ok",
		Files:       len(stats.Files),
		ChunksAdded: stats.ChunksAdded,
		TotalChunks: stats.TotalChunks,
	})
}

type buildResponse struct {
	Status  string `json:"status"`
	Chunks  int    `json:"chunks"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Build(r.Context())
	if err != nil {
		writeProviderError(w, err)
		return
	}
	resp := buildResponse{Status: "ok", Chunks: stats.Chunks}
	if stats.Empty {
		resp.Status = "empty"
		resp.Message = "no chunks to index, upload documents first"
	}
	writeJSON(w, http.StatusOK, resp)
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type askResponse struct {
	Status  string            `json:"status"`
	Answer  string            `json:"answer,omitempty"`
	Sources []composer.Source `json:"sources,omitempty"`
	Message string            `json:"message,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	answer, err := s.svc.Ask(r.Context(), req.Question, req.TopK)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, askResponse{Status: "ok", Answer: answer.Text, Sources: answer.Sources})
	case errors.Is(err, rag.ErrNoQuestion):
		writeJSON(w, http.StatusOK, askResponse{Status: "no_question"})
	case errors.Is(err, searcher.ErrIndexNotBuilt):
		writeJSON(w, http.StatusOK, askResponse{Status: "not_ready", Message: "index not built, call /build first"})
	default:
		writeProviderError(w, err)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.svc.Reset(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type healthResponse struct {
	Status        string `json:"status"`
	TotalChunks   int    `json:"total_chunks"`
	IndexedChunks int    `json:"indexed_chunks"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	stats := s.svc.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		TotalChunks:   stats.TotalChunks,
		IndexedChunks: stats.IndexedChunks,
	})
}

// writeProviderError maps upstream provider failures to 502 and everything
// else to 500.
func writeProviderError(w http.ResponseWriter, err error) {
	if errors.Is(err, embedder.ErrProviderFailed) || errors.Is(err, composer.ErrCompletionFailed) {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"status": "error", "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cors allows browser frontends on any origin to call the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
