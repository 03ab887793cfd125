// Package llm talks to hosted language models. Every request in this
// service asks for one JSON document matching a Schema; providers differ
// only in how they ask for it.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider sends one request to a model.
type Provider interface {
	// Generate returns the model output. When req.Schema is set and the
	// provider is wrapped by WithValidation, Content conforms to it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID is the configured model, before any server-side aliasing.
	ModelID() string
}

type Request struct {
	System   string
	Messages []Message

	// Schema requests structured output. Nil means free text.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]. Zero leaves the provider default.
	Temperature float64
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema names a JSON Schema document. Name is kebab-case and doubles as
// the OpenAI response_format name.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	Content json.RawMessage
	Usage   Usage

	// Model is what actually served the request, which can differ from
	// ModelID when the provider resolves aliases.
	Model string

	// StopReason is StopEnd or StopMaxTokens.
	StopReason string
}

// Normalized stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// Decode unmarshals Content into v. A decode failure is reported as
// *ErrInvalidResponse so callers see one error type for bad model output.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Content, v); err != nil {
		return &ErrInvalidResponse{Content: r.Content, Err: fmt.Errorf("decode %T: %w", v, err)}
	}
	return nil
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
