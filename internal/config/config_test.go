package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "skillissue.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", f.Log.Mode)
	assert.Equal(t, "@every 5m", f.Scheduler.Schedule)
	assert.Equal(t, 1, f.Scheduler.MaxUsersPerTick)
	assert.Equal(t, 4*time.Hour, f.Scheduler.MinInterval)
	assert.Equal(t, 5, f.Scheduler.DailyCap)
	assert.Equal(t, 10, f.Optimizer.MinQuestions)
	assert.InDelta(t, 2.5, f.Optimizer.RatingThreshold, 1e-9)
	assert.Equal(t, 2, f.Optimizer.MaxConcurrentJobs)
	require.NotNil(t, f.Optimizer.AutoDeploy)
	assert.True(t, *f.Optimizer.AutoDeploy)
	assert.Equal(t, 2*time.Hour, f.Optimizer.StaleAfter)
	assert.Equal(t, 30*time.Second, f.Generation.Timeout)
}

func TestLoad_File(t *testing.T) {
	p := writeFile(t, `
database:
  path: /var/lib/skillissue/data.db
log:
  mode: prod
scheduler:
  schedule: "0 */10 * * * *"
  max_users_per_tick: 3
  min_interval: 2h
  day_timezone: Europe/Berlin
optimizer:
  rating_threshold: 3
  max_concurrent_jobs: 4
  auto_deploy: false
  rating_window: 168h
generation:
  timeout: 45s
`)
	f, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/skillissue/data.db", f.Database.Path)
	assert.Equal(t, "prod", f.Log.Mode)
	assert.Equal(t, "0 */10 * * * *", f.Scheduler.Schedule)

	sc := f.SchedulerSettings()
	assert.Equal(t, 3, sc.MaxUsersPerTick)
	assert.Equal(t, 2*time.Hour, sc.Gating.MinInterval)
	assert.Equal(t, "Europe/Berlin", sc.DayLocation.String())

	qc := f.QueueSettings()
	assert.Equal(t, 4, qc.MaxConcurrentJobs)
	assert.False(t, qc.AutoDeploy, "explicit false must survive defaults")
	assert.Equal(t, 5, qc.RefinementBudget)

	dc := f.DetectorSettings()
	assert.InDelta(t, 3.0, dc.RatingThreshold, 1e-9)
	assert.Equal(t, 168*time.Hour, dc.Window)

	assert.Equal(t, 45*time.Second, f.ChallengeSettings().GenerateTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeFile(t, "database:\n  path: from-file.db\nlog:\n  mode: dev\n")
	t.Setenv("SKILLISSUE_DB", "from-env.db")
	t.Setenv("SKILLISSUE_LOG_MODE", "prod")
	t.Setenv("SKILLISSUE_HTTP_ADDR", ":9999")

	f, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", f.Database.Path)
	assert.Equal(t, "prod", f.Log.Mode)
	assert.Equal(t, ":9999", f.HTTP.Addr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "scheduler: [unclosed"},
		{"bad zone", "scheduler:\n  day_timezone: Mars/Olympus\n"},
		{"threshold off scale", "optimizer:\n  rating_threshold: 7\n"},
		{"negative window", "optimizer:\n  rating_window: -1h\n"},
		{"stale before timeout", "optimizer:\n  stale_after: 10m\n"},
		{"stale equals timeout", "optimizer:\n  stale_after: 30m\n  job_timeout: 30m\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
