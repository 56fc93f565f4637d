// internal/kolosaltest/server.go
// Package kolosaltest provides a scriptable in-process stand-in for kolosal-server.
package kolosaltest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ProgressStep is one scripted answer from the download-progress endpoint.
type ProgressStep struct {
	Status     string
	Percentage float64
	Downloaded int64
	Total      int64
	// NotFound answers 404 with a download_not_found error body.
	NotFound bool
	// HTTPStatus, when non-zero and not 200, answers with that status and a plain body.
	HTTPStatus int
}

// Downloading is shorthand for an in-progress step.
func Downloading(pct float64) ProgressStep {
	return ProgressStep{Status: "downloading", Percentage: pct, Downloaded: int64(pct * 10), Total: 1000}
}

// Status is shorthand for a step that only sets the status.
func Status(s string) ProgressStep { return ProgressStep{Status: s} }

// Server is a fake kolosal-server. Zero configuration answers healthy with no engines.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	healthStatus  string
	healthCode    int
	engines       []string
	legacyOnly    bool
	wrapEngines   bool
	progress      map[string][]ProgressStep
	controlOK     bool
	controlReply  map[string]any
	streamFrames  []string
	streamStatus  int
	chatText      *string
	counts        map[string]int
	registrations []map[string]any
	headers       []http.Header
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{
		healthStatus: "healthy",
		healthCode:   http.StatusOK,
		progress:     map[string][]ProgressStep{},
		controlOK:    true,
		counts:       map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/engines", s.handleEngines(true))
	r.Get("/engines", s.handleEngines(false))
	r.Post("/engines", s.handleRegister)
	r.Get("/v1/download-progress/{id}", s.handleProgress)
	r.Post("/downloads", s.handleControl)
	r.Post("/downloads/{id}/{action}", s.handleControl)
	r.Post("/v1/inference/chat/completions", s.handleChat)
	r.Post("/v1/chat/completions", s.handleOpenAIChat)

	s.Server = httptest.NewServer(r)
	return s
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts[r.Method+" "+r.URL.Path]++
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// SetHealth sets the status string and HTTP code returned by /v1/health.
func (s *Server) SetHealth(status string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = status
	s.healthCode = code
}

// SetEngines replaces the engine list.
func (s *Server) SetEngines(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines = append([]string(nil), ids...)
}

// LegacyEnginesOnly makes /v1/engines answer 404 so clients must fall back to /engines.
func (s *Server) LegacyEnginesOnly(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyOnly = v
}

// WrapEngines makes the listing use {"engines": [...]} instead of a bare array.
func (s *Server) WrapEngines(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapEngines = v
}

// ScriptProgress queues answers for id. The last step repeats once the queue drains.
func (s *Server) ScriptProgress(id string, steps ...ProgressStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = append([]ProgressStep(nil), steps...)
}

// SetControlReply sets the body returned by download control endpoints. A nil reply
// restores {"success": true}.
func (s *Server) SetControlReply(reply map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlReply = reply
}

// SetStream sets the raw lines written by a streaming chat request and its status.
func (s *Server) SetStream(status int, lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamStatus = status
	s.streamFrames = append([]string(nil), lines...)
}

// SetChatText sets the non-streaming reply. Nil omits the text field.
func (s *Server) SetChatText(text *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatText = text
}

// Count returns how many requests hit method and path.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+path]
}

// Registrations returns the decoded bodies of every POST /engines.
func (s *Server) Registrations() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.registrations...)
}

// Headers returns the headers of every request received, in order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, code := s.healthStatus, s.healthCode
	s.mu.Unlock()
	if status == "" {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, "not json")
		return
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleEngines(v1 bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if v1 && s.legacyOnly {
			http.NotFound(w, r)
			return
		}
		items := make([]map[string]any, 0, len(s.engines))
		for i, id := range s.engines {
			key := "id"
			if i%2 == 1 {
				key = "engine_id"
			}
			items = append(items, map[string]any{key: id, "status": "loaded"})
		}
		if s.wrapEngines {
			writeJSON(w, http.StatusOK, map[string]any{"engines": items})
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"code": "bad_request"}})
		return
	}
	s.mu.Lock()
	s.registrations = append(s.registrations, body)
	if id, ok := body["engine_id"].(string); ok {
		s.engines = append(s.engines, id)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]any{"engine_id": body["engine_id"], "status": "downloading"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	steps := s.progress[id]
	var step ProgressStep
	found := len(steps) > 0
	if found {
		step = steps[0]
		if len(steps) > 1 {
			s.progress[id] = steps[1:]
		}
	}
	s.mu.Unlock()

	switch {
	case !found || step.NotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "download_not_found", "message": "no download for " + id},
		})
	case step.HTTPStatus != 0 && step.HTTPStatus != http.StatusOK:
		w.WriteHeader(step.HTTPStatus)
		_, _ = io.WriteString(w, "scripted failure")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"model_id": id,
			"status":   step.Status,
			"progress": map[string]any{
				"downloaded_bytes": step.Downloaded,
				"total_bytes":      step.Total,
				"percentage":       step.Percentage,
			},
		})
	}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reply := s.controlReply
	s.mu.Unlock()
	if reply == nil {
		reply = map[string]any{"success": true, "message": "ok"}
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model     string `json:"model"`
		Streaming bool   `json:"streaming"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	frames, status, text := s.streamFrames, s.streamStatus, s.chatText
	s.mu.Unlock()

	if !req.Streaming {
		if text == nil {
			writeJSON(w, http.StatusOK, map[string]any{"model": req.Model})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"text": *text, "model": req.Model})
		return
	}

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(status)
	flusher, _ := w.(http.Flusher)
	for _, f := range frames {
		fmt.Fprintf(w, "%s\n\n", f)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleOpenAIChat answers the OpenAI-compatible endpoint by echoing the scripted
// stream text as chat.completion.chunk events.
func (s *Server) handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	text := ""
	if s.chatText != nil {
		text = *s.chatText
	}
	s.mu.Unlock()

	if !req.Stream {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": text}, "finish_reason": "stop"}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, word := range splitWords(text) {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": word}}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func splitWords(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
