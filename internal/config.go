package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 中繼伺服器配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Game struct {
		MaxPlayers int    `yaml:"max_players"`
		GameMode   string `yaml:"game_mode"`

		// MaxScore 伺服器端的結算分數門檻。
		// 與客戶端本地模擬的分數上限是兩個獨立的設定，刻意不統一。
		MaxScore int `yaml:"max_score"`

		RoomWidth  float64 `yaml:"room_width"`
		RoomDepth  float64 `yaml:"room_depth"`
		RoomHeight float64 `yaml:"room_height"`
	} `yaml:"game"`

	Cleanup struct {
		Interval      time.Duration `yaml:"interval"`
		RoomTimeout   time.Duration `yaml:"room_timeout"`
		PlayerTimeout time.Duration `yaml:"player_timeout"`
	} `yaml:"cleanup"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second

	cfg.Game.MaxPlayers = 2
	cfg.Game.GameMode = "pong"
	cfg.Game.MaxScore = 11
	cfg.Game.RoomWidth = 4
	cfg.Game.RoomDepth = 6
	cfg.Game.RoomHeight = 3

	cfg.Cleanup.Interval = 1 * time.Minute
	cfg.Cleanup.RoomTimeout = 30 * time.Minute
	cfg.Cleanup.PlayerTimeout = 5 * time.Minute

	cfg.Redis.Addr = "localhost:6379"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 從 YAML 檔案載入配置，未指定的欄位保留預設值
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置檔失敗: %w", err)
	}

	return cfg, nil
}

// RoomSettings 房間設定
type RoomSettings struct {
	MaxPlayers int            `json:"maxPlayers" yaml:"max_players"`
	GameMode   string         `json:"gameMode" yaml:"game_mode"`
	Dimensions RoomDimensions `json:"roomDimensions" yaml:"room_dimensions"`
}

// RoomDimensions 球場尺寸（公尺）
type RoomDimensions struct {
	Width  float64 `json:"width" yaml:"width"`
	Depth  float64 `json:"depth" yaml:"depth"`
	Height float64 `json:"height" yaml:"height"`
}

// DefaultRoomSettings 由配置導出房間預設設定
func (c *Config) DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		MaxPlayers: c.Game.MaxPlayers,
		GameMode:   c.Game.GameMode,
		Dimensions: RoomDimensions{
			Width:  c.Game.RoomWidth,
			Depth:  c.Game.RoomDepth,
			Height: c.Game.RoomHeight,
		},
	}
}
