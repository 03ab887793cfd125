package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

func clearLLMEnv(t *testing.T) {
	for _, k := range []string{"SKILLISSUE_LLM_PROVIDER", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
}

func newApp(t *testing.T, p llm.Provider) *App {
	t.Helper()
	a, err := New(context.Background(), Options{
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		Log:      logger.Nop(),
		Provider: p,
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func enroll(t *testing.T, st *store.Store) (*store.Learner, *store.Skill) {
	t.Helper()
	ctx := context.Background()
	l := &store.Learner{Name: "ada", TimeZone: "UTC"}
	require.NoError(t, st.CreateLearner(ctx, l))
	sk := &store.Skill{Name: "SQL joins", Description: "inner and outer joins", Active: true}
	require.NoError(t, st.CreateSkill(ctx, sk))
	_, err := st.Enroll(ctx, l.ID, sk.ID, 3)
	require.NoError(t, err)
	return l, sk
}

func TestApp_TickIssuesGeneratedChallenge(t *testing.T) {
	out, err := json.Marshal(map[string]any{
		"question":      "Which join keeps unmatched rows from the left table?",
		"options":       []string{"INNER JOIN", "LEFT JOIN", "CROSS JOIN", "SEMI JOIN"},
		"correct_index": 1,
		"explanation":   "A LEFT JOIN keeps every row of the left table.",
	})
	require.NoError(t, err)
	a := newApp(t, llm.NewMockProvider(llm.MockResponse{Content: out}))
	l, sk := enroll(t, a.Store)
	ctx := context.Background()

	decisions := a.Scheduler.Tick(ctx)
	require.Len(t, decisions, 1)
	assert.Equal(t, sk.ID, decisions[0].SkillID)

	issued, err := a.Store.ListChallenges(ctx, l.ID, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	c := issued[0]
	assert.False(t, c.Placeholder)
	assert.Equal(t, 3, c.Difficulty)

	srv := httptest.NewServer(a.API.Router())
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/v1/challenges/"+c.ID+"/answer", "application/json",
		strings.NewReader(`{"selected_index": 1, "response_time_ms": 3000}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Correct          bool `json:"correct"`
		DifficultyTarget int  `json:"difficulty_target"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Correct)
	assert.Equal(t, 4, body.DifficultyTarget)

	state, err := a.Store.GetUserSkillState(ctx, l.ID, sk.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, state.DifficultyTarget)
	assert.Equal(t, 1, state.AttemptsTotal)
}

func TestApp_WithoutProvider(t *testing.T) {
	clearLLMEnv(t)
	a := newApp(t, nil)
	assert.Nil(t, a.Provider)
	l, _ := enroll(t, a.Store)
	ctx := context.Background()

	require.Len(t, a.Scheduler.Tick(ctx), 1)
	issued, err := a.Store.ListChallenges(ctx, l.ID, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.True(t, issued[0].Placeholder)

	// Detection still runs; nothing is rated so nothing is queued.
	assert.Zero(t, a.Optimizer.Run(ctx).Claimed)
}

func TestApp_MockProviderFromEnv(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("SKILLISSUE_LLM_PROVIDER", "mock")
	a := newApp(t, nil)
	require.NotNil(t, a.Provider)
	assert.Equal(t, "mock", a.Provider.ModelID())
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	clearLLMEnv(t)
	a := newApp(t, nil)
	a.Config.HTTP.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
