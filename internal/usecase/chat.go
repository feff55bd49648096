package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"chat-relay/internal/domain"
)

const defaultUpstreamTimeout = 60 * time.Second

type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService relays a single message to the completion backend. It holds no
// per-request state and is shared by all handlers.
type ChatService struct {
	completer       Completer
	systemPrompt    string
	maxMessageLen   int
	upstreamTimeout time.Duration
}

type ChatInput struct {
	// Message is nil when the request body had no message field.
	Message *string
}

type ChatOutput struct {
	Response string
}

// NewChatService builds the service. maxMessageLen <= 0 disables the length
// check; upstreamTimeout <= 0 falls back to 60s.
func NewChatService(c Completer, systemPrompt string, maxMessageLen int, upstreamTimeout time.Duration) (*ChatService, error) {
	if c == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if upstreamTimeout <= 0 {
		upstreamTimeout = defaultUpstreamTimeout
	}
	return &ChatService{
		completer:       c,
		systemPrompt:    strings.TrimSpace(systemPrompt),
		maxMessageLen:   maxMessageLen,
		upstreamTimeout: upstreamTimeout,
	}, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if in.Message == nil {
		return ChatOutput{}, newError(ErrorInvalidInput, "missing_message", nil)
	}
	message := *in.Message
	if strings.TrimSpace(message) == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if s.maxMessageLen > 0 && utf8.RuneCountInString(message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	text, err := s.completer.Complete(callCtx, buildMessages(s.systemPrompt, message))
	if err != nil {
		return ChatOutput{}, classifyUpstream(err)
	}
	return ChatOutput{Response: text}, nil
}

func buildMessages(systemPrompt, message string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: systemPrompt})
	}
	return append(messages, domain.ChatMessage{Role: "user", Content: message})
}

func classifyUpstream(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorUpstreamTimeout, "completion_timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ErrorUpstream, "completion_canceled", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "completion_rate_limited", err)
	}
	return newError(ErrorUpstream, "completion_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
