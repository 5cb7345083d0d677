package llm

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiClient implements Provider on top of the Gemini chat API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is not set (GEMINI_API_KEY or model.api_key)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, serviceErr("creating gemini client", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	model := g.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	gcfg := &genai.GenerateContentConfig{}
	if cfg.Instructions != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(cfg.Instructions, genai.RoleUser)
	}
	if cfg.ReasoningEffort > 0 {
		budget := int32(cfg.ReasoningEffort)
		gcfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	chat, err := g.client.Chats.Create(ctx, model, gcfg, nil)
	if err != nil {
		return nil, serviceErr("creating chat", err)
	}

	s := &geminiSession{id: uuid.NewString(), chat: chat}
	slog.Debug("gemini chat created", "session", s.id, "model", model, "thinking_budget", cfg.ReasoningEffort)
	return s, nil
}

// Close implements Provider. The genai client holds no resources to release.
func (g *GeminiClient) Close() error {
	return nil
}

type geminiSession struct {
	id   string
	chat *genai.Chat

	mu     sync.Mutex
	closed bool
}

func (s *geminiSession) ID() string { return s.id }

func (s *geminiSession) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return failed(serviceErr("sending message", ErrSessionClosed))
	}

	var once sync.Once
	return func(yield func(string, error) bool) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}
		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: message}) {
			if err != nil {
				yield("", serviceErr("streaming reply", err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

func (s *geminiSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
