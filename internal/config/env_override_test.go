package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_DatabasePath(t *testing.T) {
	t.Setenv("ROLLSCHED_DB", "/tmp/custom.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath)
}

func TestEnvOverrides_Logging(t *testing.T) {
	t.Setenv("ROLLSCHED_LOG_LEVEL", "debug")
	t.Setenv("ROLLSCHED_DEBUG", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestEnvOverrides_CampaignThresholds(t *testing.T) {
	t.Setenv("ROLLSCHED_SUGGEST_THRESHOLD_T", "2500")
	t.Setenv("ROLLSCHED_HARD_LIMIT_T", "3200")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, 2500.0, cfg.Campaign.SuggestThresholdT)
	assert.Equal(t, 3200.0, cfg.Campaign.HardLimitT)
}

func TestEnvOverrides_NoneSetKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	before := *cfg
	cfg.applyEnvOverrides()

	assert.Equal(t, before.DatabasePath, cfg.DatabasePath)
	assert.Equal(t, before.Campaign, cfg.Campaign)
}
