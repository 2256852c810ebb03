package scheduler_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/scheduler"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, time.Minute, cfg.Sched.Tick)
	assert.Equal(t, scheduler.DefaultConcurrency, cfg.Sched.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Sched.MaxBackoff)
	assert.Equal(t, "monitor.check.events", cfg.Kafka.Topic)
	assert.Equal(t, []string{"localhost:9094"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Relay)
	assert.NotEmpty(t, cfg.Kafka.InstanceID)
	assert.True(t, cfg.Alerts.RecoveryEnabled)
	assert.Equal(t, 30*time.Second, cfg.Probe.Timeout)

	p := cfg.AsPolicy()
	assert.Equal(t, scheduler.RestartClamp, p.RestartPolicy)
	assert.True(t, p.ErrorBackoff)
	assert.Equal(t, time.Minute, cfg.AsRunnerConfig().Tick)
	assert.Equal(t, "monitor-engine", cfg.AsLoggerConfig().App)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage: memory
sched:
  tick: 15s
  restart_policy: catchup
alerts:
  default_email: ops@example.com
`), 0o600))
	t.Setenv("SCHED_CONCURRENCY", "4")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 15*time.Second, cfg.Sched.Tick)
	assert.Equal(t, 4, cfg.Sched.Concurrency)
	assert.Equal(t, scheduler.RestartCatchUp, cfg.AsPolicy().RestartPolicy)
	assert.Equal(t, "ops@example.com", cfg.Alerts.DefaultEmail)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Slack.WebhookURL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ALERTS_PRODUCT=Status Board\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ALERTS_PRODUCT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Status Board", cfg.Alerts.Product)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE", "sqlite")
	_, err := Load("")
	assert.ErrorContains(t, err, "storage")

	t.Setenv("STORAGE", "memory")
	t.Setenv("SCHED_RESTART_POLICY", "later")
	_, err = Load("")
	assert.ErrorContains(t, err, "restart_policy")
}
