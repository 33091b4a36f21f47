// Package chat orchestrates one answer turn end to end: load the session,
// produce an answer through the retrieval-gated path or the tool-calling
// agent, persist the turn pair and hand the result back.
//
// Both entry points share the same pipeline; Answer returns a single reply,
// Stream delivers the same answer as an ordered event sequence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/rag"
	"github.com/docent-ai/docent/internal/session"
)

// Answer modes.
const (
	// ModeChat answers from gated retrieval: embed, query, confidence
	// check, then a single grounded completion or the fixed fallback.
	ModeChat = "chat"

	// ModeAgent lets the model decide which tools to call before answering.
	ModeAgent = "agent"
)

// Validation errors. Both are rejected before any remote call is made.
var (
	ErrEmptyMessage = errors.New("message is required")
	ErrUnknownMode  = errors.New("unknown answer mode")
)

const chatSystemPrompt = "You are a helpful assistant that must answer using ONLY the provided context.\n" +
	"If the context does not contain the answer, say you don't know.\n" +
	"Always indicate which source(s) you used in your answer.\n" +
	"Do NOT guess or fabricate facts. If unsure, say you are unsure."

// Request is one inbound question.
// An empty SessionID, or one that no longer resolves, starts a new session.
type Request struct {
	SessionID string
	Message   string
	Mode      string
}

// Reply is the non-streamed outcome.
type Reply struct {
	SessionID string           `json:"sessionId"`
	Answer    string           `json:"answer"`
	Sources   []session.Source `json:"sources"`
}

// Config holds the orchestrator's tunables.
type Config struct {
	HistoryWindow int     // recent turns carried into prompts and retrieval
	Temperature   float32 // sampling temperature for grounded completions
}

// Service wires the session store, the retrieval gate and the agent loop.
type Service struct {
	store     session.Store
	retriever *rag.Retriever
	client    llm.Client
	agent     *agent.Agent
	cfg       Config
	logger    log.Logger
}

// NewService creates the orchestrator.
func NewService(store session.Store, retriever *rag.Retriever, client llm.Client, ag *agent.Agent, cfg Config, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		store:     store,
		retriever: retriever,
		client:    client,
		agent:     ag,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer runs one blocking turn.
func (s *Service) Answer(ctx context.Context, req Request) (*Reply, error) {
	mode, err := validate(req)
	if err != nil {
		return nil, err
	}

	sess, err := s.loadOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	recent := session.RecentTurns(sess, s.cfg.HistoryWindow)

	var answer string
	var sources []session.Source
	switch mode {
	case ModeChat:
		answer, sources, err = s.answerChat(ctx, req.Message, recent, nil)
	case ModeAgent:
		res, runErr := s.agent.Run(ctx, turnMessages(recent), req.Message)
		if runErr != nil {
			err = runErr
		} else {
			answer, sources = res.Answer, res.Sources
		}
	}
	if err != nil {
		return nil, err
	}

	sess, err = s.persistTurns(ctx, sess, req.Message, answer, sources)
	if err != nil {
		return nil, err
	}

	return &Reply{SessionID: sess.ID, Answer: answer, Sources: sources}, nil
}

// answerChat runs the retrieval-gated path. When onToken is non-nil the
// grounded completion is streamed through it; the returned answer is always
// the full text.
func (s *Service) answerChat(ctx context.Context, message string, recent []session.Turn, onToken llm.StreamFunc) (string, []session.Source, error) {
	outcome, err := s.retriever.Retrieve(ctx, message, recent)
	if err != nil {
		return "", nil, err
	}

	if !outcome.Confident {
		// The fallback reply carries no sources even though passages were
		// retrieved: references below the confidence bar would only lend
		// false authority to a non-answer.
		return rag.FallbackAnswer, []session.Source{}, nil
	}

	return s.answerChatCompletion(ctx, message, recent, outcome.Sources, onToken)
}

// answerChatCompletion performs the grounded completion over already-gated
// sources.
func (s *Service) answerChatCompletion(ctx context.Context, message string, recent []session.Turn, sources []session.Source, onToken llm.StreamFunc) (string, []session.Source, error) {
	prompt := fmt.Sprintf("User question:\n%s\n\nContext:\n%s",
		message, rag.RenderContext(sources))

	messages := make([]llm.Message, 0, len(recent)+2)
	messages = append(messages, llm.NewSystemMessage(chatSystemPrompt))
	messages = append(messages, turnMessages(recent)...)
	messages = append(messages, llm.NewUserMessage(prompt))

	req := llm.Request{Messages: messages, Temperature: s.cfg.Temperature}
	var resp *llm.Response
	var err error
	if onToken != nil {
		resp, err = s.client.CompleteStream(ctx, req, onToken)
	} else {
		resp, err = s.client.Complete(ctx, req)
	}
	if err != nil {
		return "", nil, fmt.Errorf("grounded completion: %w", err)
	}

	return resp.Message.Content, sources, nil
}

// loadOrCreate resolves the session, starting a fresh one when the id is
// empty or stale. A stale id is not an error: the client keeps chatting and
// simply gets a new session id back.
func (s *Service) loadOrCreate(ctx context.Context, id string) (*session.Session, error) {
	if id != "" {
		sess, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			return sess, nil
		case errors.Is(err, session.ErrNotFound):
			s.logger.Debug("session id not found, creating new session", "session_id", id)
		default:
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	sess, err := s.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// persistTurns appends the user turn, then the assistant turn.
// A failure between the two leaves a user turn without its answer; that is
// accepted rather than wrapped in a transaction the store may not offer.
func (s *Service) persistTurns(ctx context.Context, sess *session.Session, message, answer string, sources []session.Source) (*session.Session, error) {
	sess, err := s.store.AppendTurn(ctx, sess, session.Turn{
		Role:    session.RoleUser,
		Content: message,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	sess, err = s.store.AppendTurn(ctx, sess, session.Turn{
		Role:    session.RoleAssistant,
		Content: answer,
		Sources: sources,
	})
	if err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}
	return sess, nil
}

func validate(req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", ErrEmptyMessage
	}
	switch req.Mode {
	case "", ModeChat:
		return ModeChat, nil
	case ModeAgent:
		return ModeAgent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
}

// turnMessages converts persisted turns into prompt messages.
func turnMessages(turns []session.Turn) []llm.Message {
	messages := make([]llm.Message, len(turns))
	for i, t := range turns {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages[i] = llm.Message{Role: role, Content: t.Content}
	}
	return messages
}
