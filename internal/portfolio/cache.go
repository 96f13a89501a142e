package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PublicCache は公開ページ表現のキャッシュ。
// キャッシュの障害はリクエストを失敗させず、データベース参照にフォールバックする。
type PublicCache interface {
	// Get はキャッシュ済みの公開ページを返す。未キャッシュの場合はfalseを返す。
	Get(ctx context.Context, name string) (*PublicPortfolio, bool)
	// Set は公開ページをキャッシュする。
	Set(ctx context.Context, name string, view *PublicPortfolio)
	// Invalidate は指定した名前のキャッシュを削除する。
	Invalidate(ctx context.Context, names ...string)
}

// RedisPublicCache はRedisを使用したPublicCacheの実装。
type RedisPublicCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPublicCache はRedisPublicCacheを生成する。
func NewRedisPublicCache(client *redis.Client, ttl time.Duration) *RedisPublicCache {
	return &RedisPublicCache{client: client, ttl: ttl}
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func publicCacheKey(name string) string {
	return "portfolium:public:" + name
}

// Get はキャッシュ済みの公開ページを返す。
func (c *RedisPublicCache) Get(ctx context.Context, name string) (*PublicPortfolio, bool) {
	key := publicCacheKey(name)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("public cache get failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}

	var view PublicPortfolio
	if err := json.Unmarshal(data, &view); err != nil {
		slog.Warn("public cache entry corrupted", slog.String("key", key), slog.String("error", err.Error()))
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return &view, true
}

// Set は公開ページをキャッシュする。
func (c *RedisPublicCache) Set(ctx context.Context, name string, view *PublicPortfolio) {
	if view == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		slog.Warn("public cache marshal failed", slog.String("subdomain", name), slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, publicCacheKey(name), data, c.ttl).Err(); err != nil {
		slog.Warn("public cache set failed", slog.String("subdomain", name), slog.String("error", err.Error()))
	}
}

// Invalidate は指定した名前のキャッシュを削除する。
func (c *RedisPublicCache) Invalidate(ctx context.Context, names ...string) {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			keys = append(keys, publicCacheKey(name))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("public cache invalidate failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// NoopPublicCache はキャッシュを使わない場合のPublicCache。
type NoopPublicCache struct{}

func (NoopPublicCache) Get(context.Context, string) (*PublicPortfolio, bool) { return nil, false }
func (NoopPublicCache) Set(context.Context, string, *PublicPortfolio) {}
func (NoopPublicCache) Invalidate(context.Context, ...string) {}

// compile-time interface check
var (
	_ PublicCache = (*RedisPublicCache)(nil)
	_ PublicCache = NoopPublicCache{}
)
