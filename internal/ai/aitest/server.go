// Package aitest поднимает httptest-сервер, имитирующий REST-поверхность Assistants API.
package aitest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

const APIKey = "sk-test"

// Request запрос, принятый сервером.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type message struct {
	ID          string
	ThreadID    string
	Role        string
	Texts       []string
	AssistantID string
	RunID       string
	CreatedAt   int64
}

type run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      string
	polls       int
	replied     bool
}

// Seed сообщение, заранее существующее в треде.
type Seed struct {
	ID   string
	Role string
	Text string
}

type failure struct {
	status int
	body   string
}

// Server фейковый сервис. Сообщения хранятся от старых к новым, отдаются новыми первыми.
type Server struct {
	*httptest.Server

	mu sync.Mutex
	// RunStatuses статусы, которые по очереди отдаёт GET run; последний повторяется.
	RunStatuses []string
	// Reply текст ответа ассистента, добавляемого при переходе запуска в completed.
	Reply string
	// ThreadSeed сообщения, которые появляются в каждом новом треде.
	ThreadSeed []Seed

	seq      int
	messages map[string][]*message
	runs     map[string]*run
	threads  map[string]map[string]string
	requests []Request
	failures map[string]failure
}

// NewServer запускает сервер. Закрывать через Close.
func NewServer() *Server {
	s := &Server{
		RunStatuses: []string{"completed"},
		Reply:       "hi there",
		messages:    map[string][]*message{},
		runs:        map[string]*run{},
		threads:     map[string]map[string]string{},
		failures:    map[string]failure{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assistants", s.createAssistant)
	mux.HandleFunc("POST /v1/threads", s.createThread)
	mux.HandleFunc("POST /v1/threads/{thread}/messages", s.createMessage)
	mux.HandleFunc("GET /v1/threads/{thread}/messages", s.listMessages)
	mux.HandleFunc("POST /v1/threads/{thread}/runs", s.createRun)
	mux.HandleFunc("GET /v1/threads/{thread}/runs/{run}", s.getRun)
	mux.HandleFunc("POST /v1/threads/{thread}/runs/{run}/cancel", s.cancelRun)

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// BaseURL адрес для option.WithBaseURL.
func (s *Server) BaseURL() string { return s.URL + "/v1/" }

// Fail заставляет запросы "METHOD /path" отвечать указанным статусом и телом.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

// Requests копия принятых запросов.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count число запросов с данным методом и суффиксом пути.
func (s *Server) Count(method, pathSuffix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, pathSuffix) {
			n++
		}
	}
	return n
}

// ThreadMetadata metadata, с которой был создан тред.
func (s *Server) ThreadMetadata(threadID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[threadID]
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &body)
			}
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		f, failing := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+APIKey {
			writeError(w, http.StatusUnauthorized, "Incorrect API key provided")
			return
		}
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}

		r = r.WithContext(withBody(r.Context(), body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func (s *Server) createAssistant(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())
	s.mu.Lock()
	id := s.nextID("asst")
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"id":           id,
		"object":       "assistant",
		"created_at":   time.Now().Unix(),
		"name":         body["name"],
		"description":  nil,
		"model":        body["model"],
		"instructions": body["instructions"],
		"tools":        []any{},
		"metadata":     map[string]any{},
	})
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())
	meta := map[string]string{}
	if m, ok := body["metadata"].(map[string]any); ok {
		for k, v := range m {
			meta[k] = fmt.Sprint(v)
		}
	}

	s.mu.Lock()
	id := s.nextID("thread")
	s.threads[id] = meta
	for _, seed := range s.ThreadSeed {
		m := &message{ID: seed.ID, ThreadID: id, Role: seed.Role, CreatedAt: time.Now().Unix()}
		if seed.Text != "" {
			m.Texts = []string{seed.Text}
		}
		s.messages[id] = append(s.messages[id], m)
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"id":         id,
		"object":     "thread",
		"created_at": time.Now().Unix(),
		"metadata":   meta,
	})
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")
	body := bodyFrom(r.Context())
	text, _ := body["content"].(string)
	role, _ := body["role"].(string)

	s.mu.Lock()
	if _, ok := s.threads[threadID]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "No thread found with id '"+threadID+"'.")
		return
	}
	if active := s.activeRun(threadID); active != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Can't add messages to %s while a run %s is active.", threadID, active.ID))
		return
	}
	m := &message{ID: s.nextID("msg"), ThreadID: threadID, Role: role, Texts: []string{text}, CreatedAt: time.Now().Unix()}
	s.messages[threadID] = append(s.messages[threadID], m)
	s.mu.Unlock()

	writeJSON(w, messageJSON(m))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")

	s.mu.Lock()
	stored := s.messages[threadID]
	data := make([]any, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		data = append(data, messageJSON(stored[i]))
	}
	s.mu.Unlock()

	page := map[string]any{"object": "list", "data": data, "has_more": false}
	if len(stored) > 0 {
		page["first_id"] = stored[len(stored)-1].ID
		page["last_id"] = stored[0].ID
	}
	writeJSON(w, page)
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")
	body := bodyFrom(r.Context())
	assistantID, _ := body["assistant_id"].(string)

	s.mu.Lock()
	rn := &run{ID: s.nextID("run"), ThreadID: threadID, AssistantID: assistantID, Status: "queued"}
	s.runs[rn.ID] = rn
	s.mu.Unlock()

	writeJSON(w, runJSON(rn))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rn, ok := s.runs[r.PathValue("run")]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "No run found")
		return
	}
	switch {
	case rn.Status == "cancelling":
		rn.Status = "cancelled"
	case rn.Status == "cancelled":
	case len(s.RunStatuses) > 0:
		idx := min(rn.polls, len(s.RunStatuses)-1)
		rn.Status = s.RunStatuses[idx]
	}
	rn.polls++
	if rn.Status == "completed" && !rn.replied {
		rn.replied = true
		s.messages[rn.ThreadID] = append(s.messages[rn.ThreadID], &message{
			ID:          s.nextID("msg"),
			ThreadID:    rn.ThreadID,
			Role:        "assistant",
			Texts:       []string{s.Reply},
			AssistantID: rn.AssistantID,
			RunID:       rn.ID,
			CreatedAt:   time.Now().Unix(),
		})
	}
	out := runJSON(rn)
	s.mu.Unlock()

	writeJSON(w, out)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rn, ok := s.runs[r.PathValue("run")]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "No run found")
		return
	}
	// Как и сервис, отмена не мгновенна: cancelled увидит следующий GET.
	rn.Status = "cancelling"
	out := runJSON(rn)
	s.mu.Unlock()

	writeJSON(w, out)
}

// activeRun запуск треда, который блокирует добавление сообщений. Вызывать под s.mu.
func (s *Server) activeRun(threadID string) *run {
	for _, rn := range s.runs {
		if rn.ThreadID != threadID {
			continue
		}
		switch rn.Status {
		case "queued", "in_progress", "requires_action", "cancelling":
			return rn
		}
	}
	return nil
}

func messageJSON(m *message) map[string]any {
	content := make([]any, 0, len(m.Texts))
	for _, t := range m.Texts {
		content = append(content, map[string]any{
			"type": "text",
			"text": map[string]any{"value": t, "annotations": []any{}},
		})
	}
	out := map[string]any{
		"id":           m.ID,
		"object":       "thread.message",
		"created_at":   m.CreatedAt,
		"thread_id":    m.ThreadID,
		"role":         m.Role,
		"status":       "completed",
		"content":      content,
		"assistant_id": nil,
		"run_id":       nil,
		"attachments":  []any{},
		"metadata":     map[string]any{},
	}
	if m.AssistantID != "" {
		out["assistant_id"] = m.AssistantID
	}
	if m.RunID != "" {
		out["run_id"] = m.RunID
	}
	return out
}

func runJSON(r *run) map[string]any {
	return map[string]any{
		"id":           r.ID,
		"object":       "thread.run",
		"created_at":   time.Now().Unix(),
		"thread_id":    r.ThreadID,
		"assistant_id": r.AssistantID,
		"status":       r.Status,
		"model":        "gpt-3.5-turbo",
		"instructions": "",
		"tools":        []any{},
		"metadata":     map[string]any{},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "invalid_request_error",
			"param":   nil,
			"code":    nil,
		},
	})
}

type bodyKey struct{}

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey{}, body)
}

func bodyFrom(ctx context.Context) map[string]any {
	b, _ := ctx.Value(bodyKey{}).(map[string]any)
	if b == nil {
		return map[string]any{}
	}
	return b
}
