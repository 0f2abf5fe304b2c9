package jsonrpcx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// Error represents a JSON-RPC 2.0 error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID, no response)
type Notification struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// errorContextKey carries a pending error response through the request
// context for the ErrorAdapter middleware.
type errorContextKey struct{}

// ParseRequest parses a JSON-RPC 2.0 request from the HTTP request body
func ParseRequest(r *http.Request) (*Request, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	if req.JSONRPC != "2.0" {
		return nil, fmt.Errorf("unsupported JSON-RPC version: %q", req.JSONRPC)
	}

	return &req, nil
}

// Success sends a successful JSON-RPC 2.0 response
func Success(w http.ResponseWriter, id any, result any) {
	Write(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

// WithError attaches an error response to the request context for the
// ErrorAdapter middleware to write after the handler returns.
func WithError(r *http.Request, id any, code int, message string) {
	response := &Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}

	ctx := context.WithValue(r.Context(), errorContextKey{}, response)
	*r = *r.WithContext(ctx)
}

// PendingError returns the error response stored by WithError, if any
func PendingError(r *http.Request) (*Response, bool) {
	response, ok := r.Context().Value(errorContextKey{}).(*Response)
	return response, ok
}

// SendError sends an error JSON-RPC 2.0 response directly
func SendError(w http.ResponseWriter, id any, code int, message string) {
	Write(w, Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	})
}

// Write sends a JSON-RPC 2.0 response (always HTTP 200)
func Write(w http.ResponseWriter, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC always returns HTTP 200

	// Encoding errors end up with the middleware logger
	_ = json.NewEncoder(w).Encode(response)
}
