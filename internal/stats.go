package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// StatsSink 對局統計的 fire-and-forget 落地點
//
// 中繼對統計只負責送出：寫入失敗記日誌後丟棄，
// 絕不回流影響房間狀態。
type StatsSink interface {
	Store(ctx context.Context, kind string, record any) error
}

// StatsClient 統計落地所需的最小 Redis 介面
//
// 定義介面而非依賴具體客戶端，便於測試時以 Mock 替代。
type StatsClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisSink 將統計記錄推入 Redis 列表
type RedisSink struct {
	client    StatsClient
	keyPrefix string
	logger    *slog.Logger
}

// NewRedisSink 創建 Redis 統計落地
func NewRedisSink(client StatsClient, logger *slog.Logger) *RedisSink {
	return &RedisSink{
		client:    client,
		keyPrefix: "pongball:stats:",
		logger:    logger,
	}
}

// Store 將記錄序列化後推入 kind 對應的列表
func (s *RedisSink) Store(ctx context.Context, kind string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化統計記錄失敗: %w", err)
	}

	if err := s.client.LPush(ctx, s.keyPrefix+kind, data).Err(); err != nil {
		return fmt.Errorf("寫入 Redis 失敗: %w", err)
	}

	s.logger.Debug("統計記錄已寫入", "kind", kind)
	return nil
}

// NoopSink 未啟用統計時的落地點
type NoopSink struct{}

// Store 丟棄記錄
func (NoopSink) Store(ctx context.Context, kind string, record any) error {
	return nil
}

// NewStatsSink 依配置選擇統計落地實現
func NewStatsSink(cfg *Config, logger *slog.Logger) StatsSink {
	if !cfg.Redis.Enabled {
		return NoopSink{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewRedisSink(client, logger)
}
