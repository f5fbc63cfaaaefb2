package internal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/pongball-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 測試預設配置
func TestDefaultConfig(t *testing.T) {
	cfg := internal.DefaultConfig()

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Game.MaxPlayers)
	assert.Equal(t, "pong", cfg.Game.GameMode)
	assert.Equal(t, 11, cfg.Game.MaxScore)
	assert.Equal(t, time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Cleanup.RoomTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.PlayerTimeout)
	assert.False(t, cfg.Redis.Enabled)

	settings := cfg.DefaultRoomSettings()
	assert.Equal(t, 2, settings.MaxPlayers)
	assert.Equal(t, 6.0, settings.Dimensions.Depth)
}

// TestLoadConfig 測試 YAML 載入與預設值合併
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8080
game:
  max_score: 21
cleanup:
  player_timeout: 2m
redis:
  enabled: true
  addr: redis.internal:6379
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := internal.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 21, cfg.Game.MaxScore)
	assert.Equal(t, 2*time.Minute, cfg.Cleanup.PlayerTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 檔案未覆蓋的欄位保留預設值
	assert.Equal(t, "pong", cfg.Game.GameMode)
	assert.Equal(t, 30*time.Minute, cfg.Cleanup.RoomTimeout)
}

// TestLoadConfig_Errors 測試載入失敗場景
func TestLoadConfig_Errors(t *testing.T) {
	_, err := internal.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [not a map"), 0o644))
	_, err = internal.LoadConfig(bad)
	assert.Error(t, err)
}
