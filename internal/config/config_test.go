package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
recovery_db:
  driver: memory
ledger:
  base_url: http://ledger.local
sealing:
  recipient: age1example
  identity_file: /tmp/identity
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.RecoveryDB.Driver)
	assert.Equal(t, 24, cfg.Recovery.WaitingPeriodHours)
	assert.Equal(t, 2, cfg.Recovery.RequiredApprovals)
	assert.Equal(t, 48*time.Hour, cfg.Recovery.ExpiryWindow)
	assert.False(t, cfg.Recovery.ForceExecuteEnabled)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.ExecutableInterval)
	assert.Equal(t, 365, cfg.Scheduler.AuditRetentionDays)
	assert.False(t, cfg.KafkaService.Enabled())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("RECOVERY_WAITING_PERIOD_HOURS", "48")
	t.Setenv("KAFKA_HOST", "broker")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Recovery.WaitingPeriodHours)
	assert.True(t, cfg.KafkaService.Enabled())
	assert.Equal(t, []string{"broker:9092"}, cfg.KafkaService.Brokers())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RecoveryConfig)
	}{
		{"postgres without dsn", func(c *RecoveryConfig) { c.RecoveryDB.Driver = "postgres" }},
		{"unknown driver", func(c *RecoveryConfig) { c.RecoveryDB.Driver = "sqlite" }},
		{"waiting period out of range", func(c *RecoveryConfig) { c.Recovery.WaitingPeriodHours = 169 }},
		{"no approvals", func(c *RecoveryConfig) { c.Recovery.RequiredApprovals = 0 }},
		{"zero expiry window", func(c *RecoveryConfig) { c.Recovery.ExpiryWindow = 0 }},
		{"zero parallelism", func(c *RecoveryConfig) { c.Scheduler.Parallelism = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
