package chat

import (
	"context"
	"strings"

	"github.com/docent-ai/docent/internal/rag"
	"github.com/docent-ai/docent/internal/session"
)

// Event types, in the order a healthy stream produces them:
// one meta, zero or more tokens, one done.
const (
	EventMeta  = "meta"
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// streamErrorReply is the user-facing token sent when the pipeline fails
// after streaming has started. The transport cannot retroactively signal
// failure once tokens are on the wire.
const streamErrorReply = "Failed to generate answer"

// Event is one entry in the streamed answer sequence.
type Event struct {
	Type      string
	SessionID string           // set on meta
	Sources   []session.Source // set on meta
	Content   string           // set on token
	Error     string           // set on error
}

// Stream runs one turn and delivers it as an event sequence.
//
// Contract: exactly one meta strictly before the first token, tokens whose
// concatenation equals the non-streamed answer, and exactly one terminal
// event (done, or error when the pipeline fails before meta). The channel is
// unbuffered and closed after the terminal event; an abandoned consumer
// cancels the context and the producer stops.
//
// The turn pair is persisted only after the events have drained, and only
// when streaming actually started; persistence failures are logged, never
// surfaced, because the client already has its answer.
func (s *Service) Stream(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		s.pump(ctx, req, events)
	}()
	return events
}

func (s *Service) pump(ctx context.Context, req Request, events chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	mode, err := validate(req)
	if err != nil {
		// Rejected before any remote call; nothing is persisted.
		if !emit(Event{Type: EventMeta, Sources: []session.Source{}}) {
			return
		}
		if !emit(Event{Type: EventToken, Content: err.Error()}) {
			return
		}
		emit(Event{Type: EventDone})
		return
	}

	sess, err := s.loadOrCreate(ctx, req.SessionID)
	if err != nil {
		s.logger.Error("failed to resolve session for stream", "error", err)
		if !emit(Event{Type: EventError, Error: "failed to start session"}) {
			return
		}
		emit(Event{Type: EventDone})
		return
	}
	recent := session.RecentTurns(sess, s.cfg.HistoryWindow)

	var (
		answer   strings.Builder
		sources  []session.Source
		metaSent bool
		aborted  bool
	)

	sendMeta := func(_ context.Context, srcs []session.Source) error {
		sources = srcs
		if !emit(Event{Type: EventMeta, SessionID: sess.ID, Sources: srcs}) {
			aborted = true
			return context.Canceled
		}
		metaSent = true
		return nil
	}
	sendToken := func(_ context.Context, fragment string) error {
		answer.WriteString(fragment)
		if !emit(Event{Type: EventToken, Content: fragment}) {
			aborted = true
			return context.Canceled
		}
		return nil
	}

	switch mode {
	case ModeChat:
		err = s.streamChat(ctx, req.Message, recent, sendMeta, sendToken)
	case ModeAgent:
		_, err = s.agent.RunStream(ctx, turnMessages(recent), req.Message, sendMeta, sendToken)
	}

	switch {
	case aborted:
		return
	case err != nil && !metaSent:
		s.logger.Error("stream failed before meta", "mode", mode, "error", err)
		if !emit(Event{Type: EventError, Error: streamErrorReply}) {
			return
		}
		emit(Event{Type: EventDone})
		return
	case err != nil:
		s.logger.Error("stream failed mid-answer", "mode", mode, "error", err)
		if !emit(Event{Type: EventToken, Content: streamErrorReply}) {
			return
		}
		answer.WriteString(streamErrorReply)
	}

	if !emit(Event{Type: EventDone}) {
		return
	}

	if _, err := s.persistTurns(ctx, sess, req.Message, answer.String(), sources); err != nil {
		s.logger.Error("failed to persist turns after stream",
			"session_id", sess.ID, "error", err)
	}
}

// streamChat is the retrieval-gated path in streaming form: the gate decides
// first, meta goes out with the grounded sources (or none, for the
// fallback), then the completion streams.
func (s *Service) streamChat(ctx context.Context, message string, recent []session.Turn, sendMeta func(context.Context, []session.Source) error, sendToken func(context.Context, string) error) error {
	outcome, err := s.retriever.Retrieve(ctx, message, recent)
	if err != nil {
		return err
	}

	if !outcome.Confident {
		if err := sendMeta(ctx, []session.Source{}); err != nil {
			return err
		}
		return sendToken(ctx, rag.FallbackAnswer)
	}

	if err := sendMeta(ctx, outcome.Sources); err != nil {
		return err
	}
	_, _, err = s.answerChatCompletion(ctx, message, recent, outcome.Sources, sendToken)
	return err
}
