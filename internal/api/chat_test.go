package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/chat"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/rag"
	"github.com/docent-ai/docent/internal/session"
	"github.com/docent-ai/docent/internal/tools"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (e *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

type stubIndex struct {
	matches []index.Match
	err     error
}

func (i *stubIndex) Query(context.Context, []float32, int) ([]index.Match, error) {
	return i.matches, i.err
}

type step struct {
	resp      *llm.Response
	err       error
	fragments []string
}

type scriptedClient struct {
	mu    sync.Mutex
	steps []step
}

func (c *scriptedClient) next() (step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.steps) == 0 {
		return step{}, errors.New("scripted client exhausted")
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return s, nil
}

func (c *scriptedClient) Complete(context.Context, llm.Request) (*llm.Response, error) {
	s, err := c.next()
	if err != nil {
		return nil, err
	}
	return s.resp, s.err
}

func (c *scriptedClient) CompleteStream(ctx context.Context, _ llm.Request, fn llm.StreamFunc) (*llm.Response, error) {
	s, err := c.next()
	if err != nil {
		return nil, err
	}
	for _, f := range s.fragments {
		if err := fn(ctx, f); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type testStack struct {
	server  *Server
	store   *session.MemoryStore
	service *chat.Service
}

func newTestStack(t *testing.T, matches []index.Match, steps []step) *testStack {
	t.Helper()

	store := session.NewMemoryStore()
	client := &scriptedClient{steps: steps}
	retriever := rag.NewRetriever(
		&stubEmbedder{vec: []float32{0.1, 0.2}},
		&stubIndex{matches: matches},
		rag.Policy{TopK: 5, MinScore: 0.15},
		nil,
	)
	ag := agent.New(client, tools.NewRegistry(), nil)
	svc := chat.NewService(store, retriever, client, ag, chat.Config{HistoryWindow: 6}, nil)

	srv, err := NewServer(Config{Chat: svc, Sessions: store})
	require.NoError(t, err)
	return &testStack{server: srv, store: store, service: svc}
}

func goodMatches() []index.Match {
	return []index.Match{{ID: "doc-1#0", Score: 0.7, Metadata: map[string]any{
		"source_path": "notes.pdf", "text": "The relevant passage.",
	}}}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	stack := newTestStack(t, goodMatches(),
		[]step{{resp: &llm.Response{Message: llm.NewAssistantMessage("Grounded answer.")}}})

	rec := postJSON(t, stack.server.Handler(), "/api/chat",
		map[string]string{"message": "what do the notes say?"})

	require.Equal(t, http.StatusOK, rec.Code)

	var reply chat.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, "Grounded answer.", reply.Answer)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, "doc-1#0", reply.Sources[0].ID)
}

func TestChatEndpointEmptyMessage(t *testing.T) {
	stack := newTestStack(t, nil, nil)

	rec := postJSON(t, stack.server.Handler(), "/api/chat", map[string]string{"message": "  "})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "message_required", resp.Error.Code)
}

func TestChatEndpointUnknownMode(t *testing.T) {
	stack := newTestStack(t, nil, nil)

	rec := postJSON(t, stack.server.Handler(), "/api/chat",
		map[string]string{"message": "hi", "mode": "turbo"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown_mode", resp.Error.Code)
}

func TestChatEndpointInvalidBody(t *testing.T) {
	stack := newTestStack(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	stack.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpointUpstreamFailure(t *testing.T) {
	stack := newTestStack(t, goodMatches(), []step{{err: llm.ErrUpstream}})

	rec := postJSON(t, stack.server.Handler(), "/api/chat", map[string]string{"message": "q"})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "upstream_error", resp.Error.Code)
}

// sseEvent is one decoded `data:` line.
type sseEvent struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId"`
	Sources   []session.Source `json:"sources"`
	Content   string           `json:"content"`
	Encoding  string           `json:"encoding"`
	Error     string           `json:"error"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev sseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestChatStreamEndpoint(t *testing.T) {
	stack := newTestStack(t, goodMatches(), []step{{
		resp:      &llm.Response{Message: llm.NewAssistantMessage("Stream\ned answer.")},
		fragments: []string{"Stream\ned ", "answer."},
	}})

	rec := postJSON(t, stack.server.Handler(), "/api/chat/stream",
		map[string]string{"message": "question"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 4)

	assert.Equal(t, "meta", events[0].Type)
	assert.NotEmpty(t, events[0].SessionID)
	require.Len(t, events[0].Sources, 1)

	var answer strings.Builder
	for _, ev := range events {
		if ev.Type != "token" {
			continue
		}
		assert.Equal(t, "base64", ev.Encoding)
		decoded, err := base64.StdEncoding.DecodeString(ev.Content)
		require.NoError(t, err)
		answer.Write(decoded)
	}
	assert.Equal(t, "Stream\ned answer.", answer.String())
	assert.Equal(t, "done", events[len(events)-1].Type)
}

func TestChatStreamEndpointFallback(t *testing.T) {
	stack := newTestStack(t, []index.Match{{ID: "doc-9", Score: 0.01}}, nil)

	rec := postJSON(t, stack.server.Handler(), "/api/chat/stream",
		map[string]string{"message": "off topic"})

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "meta", events[0].Type)
	assert.Empty(t, events[0].Sources)
	assert.NotNil(t, events[0].Sources)

	decoded, err := base64.StdEncoding.DecodeString(events[1].Content)
	require.NoError(t, err)
	assert.Equal(t, rag.FallbackAnswer, string(decoded))
}

func TestChatStreamEndpointInvalidBody(t *testing.T) {
	stack := newTestStack(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader("]["))
	rec := httptest.NewRecorder()
	stack.server.Handler().ServeHTTP(rec, req)

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[0].Type)
	assert.Equal(t, "done", events[1].Type)
}
