package azureopenai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"chat-relay/internal/domain"
)

const defaultHTTPTimeout = 120 * time.Second

// Settings are the three environment-sourced values plus the REST api-version.
type Settings struct {
	Endpoint   string
	Deployment string
	APIKey     string
	APIVersion string
}

// HTTPStatusError captures non-2xx upstream responses. It carries only the
// status and the service's error code and message.
type HTTPStatusError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("azureopenai: unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("azureopenai: unexpected status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a chat-completions handle bound to one Azure OpenAI deployment.
// It is safe for concurrent use and is not mutated after NewClient returns.
type Client struct {
	client     openai.Client
	deployment string
}

type clientOptions struct {
	httpClient *http.Client
	maxRetries int
}

type Option func(*clientOptions)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// WithMaxRetries sets how many times the SDK retries a failed call. The
// default is zero.
func WithMaxRetries(n int) Option {
	return func(o *clientOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// NewClient validates s and builds the SDK client. No network call is made.
func NewClient(s Settings, opts ...Option) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(s.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("azureopenai: endpoint must not be empty")
	}
	if u, err := url.Parse(endpoint); err != nil || u.Host == "" {
		return nil, errors.New("azureopenai: endpoint must be an absolute URL")
	}
	deployment := strings.TrimSpace(s.Deployment)
	if deployment == "" {
		return nil, errors.New("azureopenai: deployment must not be empty")
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("azureopenai: api key must not be empty")
	}
	apiVersion := strings.TrimSpace(s.APIVersion)
	if apiVersion == "" {
		return nil, errors.New("azureopenai: api version must not be empty")
	}

	o := clientOptions{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	client := openai.NewClient(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(s.APIKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(o.maxRetries),
	)

	return &Client{
		client:     client,
		deployment: deployment,
	}, nil
}

// Deployment returns the deployment every call is routed to.
func (c *Client) Deployment() string {
	return c.deployment
}

// Complete performs one chat-completion call and returns the text of the
// first choice.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("azureopenai: messages must not be empty")
	}

	params := openai.ChatCompletionNewParams{
		// The azure middleware routes on the model field, so it carries the
		// deployment name rather than a model id.
		Model:    openai.ChatModel(c.deployment),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		p, err := toMessageParam(m)
		if err != nil {
			return "", err
		}
		params.Messages = append(params.Messages, p)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", translateError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("azureopenai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toMessageParam(m domain.ChatMessage) (openai.ChatCompletionMessageParamUnion, error) {
	switch strings.ToLower(strings.TrimSpace(m.Role)) {
	case "system":
		return openai.SystemMessage(m.Content), nil
	case "user":
		return openai.UserMessage(m.Content), nil
	case "assistant":
		return openai.AssistantMessage(m.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("azureopenai: unsupported role %q", m.Role)
	}
}

func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &HTTPStatusError{
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return fmt.Errorf("azureopenai: request failed: %w", err)
}
