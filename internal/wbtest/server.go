// Package wbtest runs an in-process fake of the card-generation backend for
// tests. It serves the auth, processing, card and generation routes with
// canned data and records what clients sent.
package wbtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Token is the bearer token the fake issues and accepts.
const Token = "test-token"

// Server is a chi-routed fake backend.
type Server struct {
	*httptest.Server

	mu sync.Mutex
	// Users maps username to password for login.
	Users map[string]string
	// Streams maps an article to the raw SSE body returned by /api/process.
	Streams map[string]string
	// Batch is the raw SSE body returned by /api/batch/batch.
	Batch string
	// Cards maps an article to the JSON returned by get_current_card.
	Cards map[string]string
	// ChunkSize splits stream bodies into flushed writes of this many bytes.
	ChunkSize int

	updates   []json.RawMessage
	generated []string
	deleted   []string
	batches   [][]string
	processed []string
}

// New starts a fake backend. Close it with t.Cleanup(srv.Close).
func New() *Server {
	s := &Server{
		Users:     map[string]string{"manager": "secret"},
		Streams:   map[string]string{},
		Cards:     map[string]string{},
		ChunkSize: 7,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/auth/auth/login", s.handleLogin)
	r.Post("/api/auth/auth/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(requireToken)
		r.Post("/api/process", s.handleProcess)
		r.Post("/api/process/get_current_card", s.handleCard)
		r.Post("/api/batch/batch", s.handleBatch)
		r.Post("/api/wb/cards/update", s.handleUpdate)
		r.Post("/api/photo/generate/{kind}", s.handleGenerate)
		r.Delete("/api/photo/files/{name}", s.handleDelete)
		r.Get("/api/history", s.handleHistory)
		r.Get("/api/history/stats", s.handleStats)
	})
	return r
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	pw, ok := s.Users[req.Username]
	s.mu.Unlock()
	if !ok || pw != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Неверный логин или пароль"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": Token, "token_type": "bearer", "username": req.Username,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "field required"}},
		})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Users[req.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Пользователь уже существует"})
		return
	}
	s.Users[req.Username] = req.Password
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": Token, "token_type": "bearer", "username": req.Username,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Article string `json:"article"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	body, ok := s.Streams[req.Article]
	s.processed = append(s.processed, req.Article)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Карточка не найдена"})
		return
	}
	s.writeStream(w, r, body)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Articles []string `json:"articles"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.batches = append(s.batches, req.Articles)
	body := s.Batch
	s.mu.Unlock()
	s.writeStream(w, r, body)
}

// writeStream sends body in flushed chunks so readers see arbitrary frame
// splits.
func (s *Server) writeStream(w http.ResponseWriter, r *http.Request, body string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	size := s.ChunkSize
	if size <= 0 {
		size = len(body)
	}
	for len(body) > 0 {
		if r.Context().Err() != nil {
			return
		}
		n := min(size, len(body))
		_, _ = io.WriteString(w, body[:n])
		body = body[n:]
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Article string `json:"article"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	card, ok := s.Cards[req.Article]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Карточка не найдена"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, card)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decode(r, &raw); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.updates = append(s.updates, raw)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"error": false, "errorText": ""})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	var req map[string]any
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	if photo, _ := req["photo_url"].(string); photo == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "photo_url required"})
		return
	}

	s.mu.Lock()
	s.generated = append(s.generated, kind)
	n := len(s.generated)
	s.mu.Unlock()

	dir, ext := "photos", "png"
	if kind == "video" {
		dir, ext = "videos", "mp4"
	}
	name := fmt.Sprintf("%s/%s-%d.%s", dir, kind, n, ext)
	writeJSON(w, http.StatusOK, map[string]string{
		"file_name": name,
		"file_url":  s.URL + "/media/" + name,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.deleted = append(s.deleted, name)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	items := []map[string]any{
		{"id": 2, "nm_id": 1002, "article": "ART-2", "subject_name": "Платья", "status": "failed", "created_at": "2025-09-02T10:00:00"},
		{"id": 1, "nm_id": 1001, "article": "ART-1", "subject_name": "Платья", "status": "completed", "validation_score": 91, "processing_time": 42.5, "created_at": "2025-09-01T10:00:00"},
	}
	var out []map[string]any
	for _, it := range items {
		if status == "" || it["status"] == status {
			out = append(out, it)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(items), "limit": 50, "offset": 0, "items": out,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := r.URL.Query().Get("days")
	if days == "" {
		days = "30"
	}
	var period int
	_, _ = fmt.Sscanf(days, "%d", &period)
	writeJSON(w, http.StatusOK, map[string]any{
		"period_days": period, "total_processed": 2, "completed": 1, "failed": 1,
		"success_rate": 50.0, "avg_processing_time": 42.5, "avg_validation_score": 91.0,
	})
}

// SetStream registers the SSE body served for article.
func (s *Server) SetStream(article, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Streams[article] = body
}

// SetCard registers the current card returned for article.
func (s *Server) SetCard(article, cardJSON string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cards[article] = cardJSON
}

// SetBatch registers the SSE body served for batch runs.
func (s *Server) SetBatch(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batch = body
}

// Updates returns the card update payloads received so far.
func (s *Server) Updates() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.updates...)
}

// Generated returns the generation kinds requested so far.
func (s *Server) Generated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.generated...)
}

// Deleted returns the file names deleted so far.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Batches returns the article lists of every batch request.
func (s *Server) Batches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.batches...)
}

// Processed returns the articles of every process request.
func (s *Server) Processed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

// Stream builds an SSE body with one data frame per event. Strings are sent
// verbatim, anything else is JSON-encoded.
func Stream(events ...any) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("data: ")
		if s, ok := ev.(string); ok {
			b.WriteString(s)
		} else {
			data, err := json.Marshal(ev)
			if err != nil {
				panic(err)
			}
			b.Write(data)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
