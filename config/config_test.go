package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.InDelta(t, 0.60, p.TitleThreshold, 0.001)
	assert.InDelta(t, 0.60, p.UserStoryThreshold, 0.001)
	assert.InDelta(t, 0.10, p.AmbiguityWindow, 0.001)
	assert.InDelta(t, 1.0, p.TitleWeight+p.UserStoryWeight, 0.001)
	assert.Equal(t, "(ORPHAN) ", p.OrphanPrefix)
}

func TestPolicyFromEnv(t *testing.T) {
	t.Setenv("TITLE_SIM_THRESHOLD", "0.8")
	t.Setenv("USER_STORY_SIM_THRESHOLD", "not a number")

	p := PolicyFromEnv()
	assert.InDelta(t, 0.8, p.TitleThreshold, 0.001)
	// 解析できない値は既定値のまま
	assert.InDelta(t, 0.60, p.UserStoryThreshold, 0.001)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLICKUP_URL", "")
	t.Setenv("CLICKUP_API_TOKEN", "token")
	t.Setenv("CLICKUP_LIST_ID", "list-1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.clickup.com/api/v2", cfg.ClickUpURL)
	assert.Equal(t, "stories.json", cfg.StoriesJSON)
	assert.Equal(t, "backups", cfg.BackupDir)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigTrimsTrailingSlash(t *testing.T) {
	t.Setenv("CLICKUP_URL", "https://example.com/api/v2/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api/v2", cfg.ClickUpURL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.ClickUpAPIToken = "token"
	assert.Error(t, cfg.Validate())

	cfg.ClickUpListID = "list-1"
	assert.NoError(t, cfg.Validate())
}
