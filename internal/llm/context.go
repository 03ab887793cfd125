package llm

import "context"

type contextKey string

const purposeKey contextKey = "llm_purpose"

// Purposes label each request in the llm_request event log.
const (
	PurposeUnknown         = "unknown"
	PurposeChallengeGen    = "challenge-gen"
	PurposeChallengeJudge  = "challenge-judge"
	PurposeOptimizerSample = "optimizer-sample"
	PurposePromptRefine    = "prompt-refine"
)

// WithPurpose attaches a purpose label to ctx.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// EnsurePurpose sets purpose unless ctx already carries one. Callers nested
// inside another flow (optimizer sampling calls the generator) keep the
// outer label.
func EnsurePurpose(ctx context.Context, purpose string) context.Context {
	if _, ok := ctx.Value(purposeKey).(string); ok {
		return ctx
	}
	return WithPurpose(ctx, purpose)
}

// PurposeFrom returns the purpose label on ctx, or PurposeUnknown.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return PurposeUnknown
}
