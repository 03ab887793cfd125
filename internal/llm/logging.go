package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

// EventRecorder persists one row per LLM request.
type EventRecorder interface {
	AppendLLMRequest(ctx context.Context, data store.LLMRequestEventData) error
}

// LoggingProvider is a decorator that records every LLM request as an event
// and emits a log line for it.
type LoggingProvider struct {
	inner    Provider
	provider string
	events   EventRecorder
	log      *logger.Logger
}

// WithLogging wraps a Provider with event logging. events may be nil.
func WithLogging(p Provider, provider string, events EventRecorder, log *logger.Logger) Provider {
	return &LoggingProvider{
		inner:    p,
		provider: provider,
		events:   events,
		log:      logger.OrNop(log).With("component", "llm", "provider", provider),
	}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	purpose := PurposeFrom(ctx)
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start).Milliseconds()

	data := store.LLMRequestEventData{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   elapsed,
		Success:     err == nil,
		RequestBody: capBody(serializeRequest(req)),
	}
	if resp != nil {
		data.Model = resp.Model
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.ResponseBody = capBody(string(resp.Content))
	}

	var invalid *ErrInvalidResponse
	switch {
	case err == nil:
		l.log.Debug("llm request", "purpose", purpose, "model", data.Model, "latency_ms", elapsed,
			"input_tokens", data.InputTokens, "output_tokens", data.OutputTokens)
	case errors.As(err, &invalid):
		// Keep what the model said so a failing prompt can be inspected.
		data.ErrorMessage = err.Error()
		data.ResponseBody = capBody(string(invalid.Content))
		l.log.Warn("llm response rejected", "purpose", purpose, "model", data.Model, "error", err)
	default:
		data.ErrorMessage = err.Error()
		l.log.Warn("llm request failed", "purpose", purpose, "model", data.Model,
			"latency_ms", elapsed, "error", err)
	}

	if l.events != nil {
		if rerr := l.events.AppendLLMRequest(context.WithoutCancel(ctx), data); rerr != nil {
			l.log.Warn("record llm request", "error", rerr)
		}
	}
	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// maxCapturedBody bounds each stored request and response body.
const maxCapturedBody = 64 << 10

func capBody(s string) string {
	if len(s) <= maxCapturedBody {
		return s
	}
	return s[:maxCapturedBody] + "\n[truncated]"
}

// serializeRequest renders a request as role-tagged blocks for the event log.
func serializeRequest(req Request) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "[system]\n%s\n\n", req.System)
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}
