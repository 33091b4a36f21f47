package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/docent-ai/docent/internal/log"
)

// Config holds settings for the OpenAI-compatible backend.
type Config struct {
	APIKey         string
	BaseURL        string // empty = api.openai.com
	ChatModel      string
	EmbeddingModel string
	SearchModel    string // model used for the search-augmented completion

	Temperature float32
	Retry       RetryConfig   // zero value uses defaults
	RateLimiter *rate.Limiter // optional proactive rate limiting (nil = disabled)
}

// OpenAI implements Client, Embedder and Searcher against any
// OpenAI-compatible API.
type OpenAI struct {
	client      *openai.Client
	chatModel   string
	embedModel  string
	searchModel string
	temperature float32
	retry       RetryConfig
	limiter     *rate.Limiter
	logger      log.Logger
}

// Interface guards.
var (
	_ Client   = (*OpenAI)(nil)
	_ Embedder = (*OpenAI)(nil)
	_ Searcher = (*OpenAI)(nil)
)

// NewOpenAI creates the OpenAI-backed implementation.
func NewOpenAI(cfg Config, logger log.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: API key is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 && retryCfg.InitialInterval == 0 {
		retryCfg = DefaultRetryConfig()
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbeddingModel,
		searchModel: cfg.SearchModel,
		temperature: cfg.Temperature,
		retry:       retryCfg,
		limiter:     cfg.RateLimiter,
		logger:      logger,
	}, nil
}

// Complete performs a blocking chat completion.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	chatReq := o.toChatRequest(req)

	var resp openai.ChatCompletionResponse
	err := o.withRetry(ctx, "chat completion", func() error {
		var callErr error
		resp, callErr = o.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		// No choices at all is a protocol anomaly; an empty message is not.
		return &Response{Message: Message{Role: RoleAssistant}}, nil
	}

	return &Response{Message: fromChatMessage(resp.Choices[0].Message)}, nil
}

// CompleteStream performs a streaming chat completion, invoking fn for every
// text fragment. The returned message content is the concatenation of all
// fragments delivered to fn.
//
// Streaming requests carry no retry: once fragments have been delivered the
// call cannot be transparently replayed.
func (o *OpenAI) CompleteStream(ctx context.Context, req Request, fn StreamFunc) (*Response, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %w", ErrUpstream, err)
		}
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, o.toChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %w", ErrUpstream, err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, fmt.Errorf("%w: recv: %w", ErrUpstream, recvErr)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		full.WriteString(fragment)
		if fn != nil {
			if cbErr := fn(ctx, fragment); cbErr != nil {
				return nil, fmt.Errorf("stream callback: %w", cbErr)
			}
		}
	}

	return &Response{Message: Message{Role: RoleAssistant, Content: full.String()}}, nil
}

// Embed generates an embedding vector for the given text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp openai.EmbeddingResponse
	err := o.withRetry(ctx, "embedding", func() error {
		var callErr error
		resp, callErr = o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(o.embedModel),
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUpstream)
	}
	return resp.Data[0].Embedding, nil
}

// searchEnvelope is the structured reply requested from the search model.
type searchEnvelope struct {
	Answer  string      `json:"answer"`
	Results []WebResult `json:"results"`
}

const searchSystemPrompt = "You are a web search assistant. Search the web for the user's query " +
	"and respond with a single JSON object of the form " +
	`{"answer": "...", "results": [{"title": "...", "url": "...", "snippet": "..."}]}. ` +
	"Respond with JSON only, no surrounding prose."

// Search performs a search-augmented completion and extracts a best-effort
// answer with its references. A reply that does not parse as the expected
// JSON is returned verbatim as the answer with no references; that is a
// degraded result, not an error.
func (o *OpenAI) Search(ctx context.Context, query string) (*SearchResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: o.searchModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: searchSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	}

	var resp openai.ChatCompletionResponse
	err := o.withRetry(ctx, "web search", func() error {
		var callErr error
		resp, callErr = o.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return &SearchResult{}, nil
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)

	var env searchEnvelope
	if jsonErr := json.Unmarshal([]byte(trimJSONFence(raw)), &env); jsonErr != nil || env.Answer == "" {
		o.logger.Debug("search reply not in expected JSON shape, using raw text", "error", jsonErr)
		return &SearchResult{Answer: raw}, nil
	}

	return &SearchResult{Answer: env.Answer, Results: env.Results}, nil
}

// trimJSONFence strips a markdown code fence that some models wrap around
// JSON replies.
func trimJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// toChatRequest converts a Request into the wire format.
func (o *OpenAI) toChatRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = toChatMessage(m)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       o.chatModel,
		Messages:    messages,
		Temperature: o.temperature,
	}
	if req.Temperature != 0 {
		chatReq.Temperature = req.Temperature
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = make([]openai.Tool, len(req.Tools))
		for i, t := range req.Tools {
			chatReq.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		chatReq.ToolChoice = "auto"
	}

	return chatReq
}

func toChatMessage(m Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.RawArguments,
			},
		})
	}
	return out
}

func fromChatMessage(m openai.ChatCompletionMessage) Message {
	out := Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		})
	}
	return out
}
