package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-relay/internal/domain"
	"chat-relay/internal/metrics"
	"chat-relay/internal/usecase"
)

const (
	statusMessage = "Python Chat application is running. POST to /chat with a message to interact."
	statusExample = `POST /chat { "message": "Hello!" }`

	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves the HTTP surface. It is an http.Handler and, through Handle,
// an API Gateway Lambda handler backed by the same routes.
type Handler struct {
	engine  *gin.Engine
	chat    ChatUseCase
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics enables request metrics and the GET /metrics route.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{
		chat:   uc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.engine = h.routes()
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

func (h *Handler) routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	_ = r.SetTrustedProxies(nil)

	r.Use(correlationID(), h.requestLogger(), gin.CustomRecovery(h.recoverPanic))
	if h.metrics != nil {
		r.Use(h.observeRequest())
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	r.GET("/", h.status)
	r.POST("/chat", h.postChat)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorNotFound})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: errorMethodNotAllowed})
	})
	return r
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, domain.StatusResponse{
		Message: statusMessage,
		Example: statusExample,
	})
}

func (h *Handler) postChat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reason := "invalid_json"
		if errors.Is(err, io.EOF) {
			reason = "empty_body"
		}
		h.writeError(c, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: reason, Err: err})
		return
	}

	out, err := h.chat.Chat(c.Request.Context(), usecase.ChatInput{Message: req.Message})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.observeCompletion("ok")
	c.JSON(http.StatusOK, domain.ChatResponse{Response: out.Response})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		ucErr = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	if ucErr.Upstream() {
		h.observeCompletion(string(ucErr.Code))
	}

	status := statusFor(ucErr.Code)
	attrs := []any{
		"correlation_id", correlationIDFrom(c),
		"code", ucErr.Code,
		"reason", ucErr.Reason,
	}
	if ucErr.Err != nil {
		attrs = append(attrs, "err", ucErr.Err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "chat request failed", attrs...)
	} else {
		h.logger.WarnContext(c.Request.Context(), "chat request rejected", attrs...)
	}

	c.JSON(status, errorResponse{Error: string(ucErr.Code), Message: messageFor(ucErr)})
}

func (h *Handler) recoverPanic(c *gin.Context, recovered any) {
	h.logger.ErrorContext(c.Request.Context(), "panic while serving request",
		"correlation_id", correlationIDFrom(c),
		"path", c.Request.URL.Path,
		"panic", recovered,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
		Error:   string(usecase.ErrorInternal),
		Message: messageFor(&usecase.Error{Code: usecase.ErrorInternal}),
	})
}

func (h *Handler) observeCompletion(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveCompletion(outcome)
	}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	case usecase.ErrorUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the caller-facing text. Upstream detail stays in logs.
func messageFor(e *usecase.Error) string {
	switch e.Code {
	case usecase.ErrorInvalidInput:
		switch e.Reason {
		case "missing_message":
			return "request body must contain a \"message\" field"
		case "empty_message":
			return "message must not be empty"
		case "message_too_long":
			return "message exceeds the maximum allowed length"
		case "empty_body":
			return "request body is required"
		default:
			return "request body must be a JSON object with a string \"message\" field"
		}
	case usecase.ErrorRateLimited:
		return "the completion service is busy, try again later"
	case usecase.ErrorUpstream:
		return "the completion service failed to produce a response"
	case usecase.ErrorUpstreamTimeout:
		return "the completion service did not respond in time"
	default:
		return "internal server error"
	}
}
