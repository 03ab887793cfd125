package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/skillissue/internal/challenge"
	"github.com/abhisek/skillissue/internal/mastery"
	"github.com/abhisek/skillissue/internal/store"
)

type fakeChallenges struct {
	answerErr error
	rateErr   error
	gotIndex  int
	gotMs     int64
	gotRating int
}

func (f *fakeChallenges) Answer(_ context.Context, id string, idx int, ms int64) (*challenge.AnswerResult, error) {
	f.gotIndex, f.gotMs = idx, ms
	if f.answerErr != nil {
		return nil, f.answerErr
	}
	return &challenge.AnswerResult{
		Challenge: &store.Challenge{ID: id, CorrectIndex: 2, Explanation: "because"},
		Correct:   idx == 2,
		Outcome: mastery.Outcome{Adjustment: mastery.Adjustment{
			DifficultyTarget: 4, Delta: 1, Phase: mastery.PhaseBootstrap, Reason: "bootstrap: streak 1",
		}},
	}, nil
}

func (f *fakeChallenges) Rate(_ context.Context, _ string, rating int) error {
	f.gotRating = rating
	return f.rateErr
}

func newServer(t *testing.T, ch Challenges) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(New(ch, st, nil).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t, &fakeChallenges{})
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAnswer(t *testing.T) {
	ch := &fakeChallenges{}
	srv, _ := newServer(t, ch)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/challenges/c1/answer",
		`{"selected_index": 2, "response_time_ms": 4200}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, 2, ch.gotIndex)
	assert.Equal(t, int64(4200), ch.gotMs)
	assert.Equal(t, "c1", body["challenge_id"])
	assert.Equal(t, true, body["correct"])
	assert.Equal(t, float64(4), body["difficulty_target"])
	assert.Equal(t, "bootstrap", body["phase"])
}

func TestAnswer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"not found", fmt.Errorf("get challenge: %w", store.ErrNotFound), `{"selected_index": 0}`, http.StatusNotFound},
		{"already answered", challenge.ErrAlreadyAnswered, `{"selected_index": 0}`, http.StatusConflict},
		{"expired", challenge.ErrChallengeExpired, `{"selected_index": 0}`, http.StatusConflict},
		{"revision conflict", store.ErrConflict, `{"selected_index": 0}`, http.StatusConflict},
		{"bad index", challenge.ErrInvalidAnswer, `{"selected_index": 9}`, http.StatusBadRequest},
		{"internal", errors.New("disk on fire"), `{"selected_index": 0}`, http.StatusInternalServerError},
		{"missing index", nil, `{"response_time_ms": 10}`, http.StatusBadRequest},
		{"negative time", nil, `{"selected_index": 0, "response_time_ms": -1}`, http.StatusBadRequest},
		{"bad json", nil, `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, &fakeChallenges{answerErr: tt.err})
			resp, body := do(t, http.MethodPost, srv.URL+"/v1/challenges/c1/answer", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAnswer_InternalErrorIsOpaque(t *testing.T) {
	srv, _ := newServer(t, &fakeChallenges{answerErr: errors.New("disk on fire")})
	_, body := do(t, http.MethodPost, srv.URL+"/v1/challenges/c1/answer", `{"selected_index": 1}`)
	assert.Equal(t, "internal error", body["error"])
}

func TestRating(t *testing.T) {
	ch := &fakeChallenges{}
	srv, _ := newServer(t, ch)
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/challenges/c1/rating", `{"rating": 4}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 4, ch.gotRating)

	srv, _ = newServer(t, &fakeChallenges{rateErr: challenge.ErrInvalidRating})
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/challenges/c1/rating", `{"rating": 9}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, challenge.ErrInvalidRating.Error(), body["error"])
}

func TestListJobs(t *testing.T) {
	srv, st := newServer(t, &fakeChallenges{})
	ctx := context.Background()
	for _, skill := range []string{"s1", "s2"} {
		require.NoError(t, st.CreateJob(ctx, &store.OptimizationJob{SkillID: skill, DifficultyLevel: 3, TriggerReason: "low"}))
	}
	jobs, err := st.ListJobs(ctx, store.JobPending, 0)
	require.NoError(t, err)
	ok, err := st.ClaimJob(ctx, jobs[0].ID, 0)
	require.NoError(t, err)
	require.True(t, ok)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/optimization/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["jobs"], 2)

	_, body = do(t, http.MethodGet, srv.URL+"/v1/optimization/jobs?status=running", "")
	list := body["jobs"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, jobs[0].ID, list[0].(map[string]any)["id"])
	assert.NotNil(t, list[0].(map[string]any)["started_at"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/optimization/jobs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/optimization/jobs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivePrompt(t *testing.T) {
	srv, st := newServer(t, &fakeChallenges{})
	ctx := context.Background()

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/prompts/s1/3", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	v, err := st.CreatePromptVersion(ctx, store.NewPromptVersion{
		SkillID: "s1", DifficultyLevel: 3, Content: "Write a question", BaselineScore: 0.5, CurrentScore: 0.6,
	}, true)
	require.NoError(t, err)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/prompts/s1/3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, v.ID, body["id"])
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, "Write a question", body["content"])

	for _, level := range []string{"0", "11", "x"} {
		resp, _ = do(t, http.MethodGet, srv.URL+"/v1/prompts/s1/"+level, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "level %s", level)
	}
}
