package domain

// ChatMessage is the provider-agnostic chat message shape used by the usecase
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by POST /chat. Message is a pointer so an
// absent field can be told apart from an empty one.
type ChatRequest struct {
	Message *string `json:"message"`
}

// ChatResponse wraps the completion text returned to the caller.
type ChatResponse struct {
	Response string `json:"response"`
}

// StatusResponse is the fixed body served by GET /.
type StatusResponse struct {
	Message string `json:"message"`
	Example string `json:"example"`
}
