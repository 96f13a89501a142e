package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	AccountRate     rate.Limit    // 認証済みAPIのアカウントごとのレート（req/sec）
	AccountBurst    int           // 認証済みAPIのバーストサイズ
	UploadRate      rate.Limit    // アップロードのアカウントごとのレート
	UploadBurst     int           // アップロードのバーストサイズ
	ClientRate      rate.Limit    // 公開ページ・ログインのクライアントIPごとのレート
	ClientBurst     int           // 公開ページ・ログインのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証済みAPI 120 req/min/account、アップロード 10 req/min/account、公開 60 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		AccountRate:     rate.Limit(120.0 / 60.0),
		AccountBurst:    120,
		UploadRate:      rate.Limit(10.0 / 60.0),
		UploadBurst:     10,
		ClientRate:      rate.Limit(60.0 / 60.0),
		ClientBurst:     60,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキー（アカウントIDやクライアントIP）ごとのリミッター集合。
type keyedLimiter struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newKeyedLimiter(name string, limit rate.Limit, burst int) *keyedLimiter {
	return &keyedLimiter{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
	}
}

// allow はキーのリミッターからトークンを1つ消費できるかを返す。
func (k *keyedLimiter) allow(key string, now time.Time) bool {
	k.mu.Lock()
	entry, ok := k.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastAccess = now
	k.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (k *keyedLimiter) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// evict は最終アクセスがttlより前のエントリを削除する。
func (k *keyedLimiter) evict(now time.Time, ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, entry := range k.limiters {
		if now.Sub(entry.lastAccess) > ttl {
			delete(k.limiters, key)
		}
	}
}

// RateLimiter はアカウント・クライアントごとのレート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	account *keyedLimiter
	upload  *keyedLimiter
	client  *keyedLimiter
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		account: newKeyedLimiter("account", config.AccountRate, config.AccountBurst),
		upload:  newKeyedLimiter("upload", config.UploadRate, config.UploadBurst),
		client:  newKeyedLimiter("client", config.ClientRate, config.ClientBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// AccountMiddleware は認証済みAPIのレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) AccountMiddleware() func(next http.Handler) http.Handler {
	return rl.accountScoped(rl.account)
}

// UploadMiddleware はアップロード専用のレート制限ミドルウェアを返す。
// AccountMiddlewareとは独立に動作する。
func (rl *RateLimiter) UploadMiddleware() func(next http.Handler) http.Handler {
	return rl.accountScoped(rl.upload)
}

func (rl *RateLimiter) accountScoped(k *keyedLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}
			if !k.allow(accountID, rl.now()) {
				slog.Warn("rate limit exceeded",
					slog.String("account_id", accountID),
					slog.String("limit_type", k.name),
				)
				writeRateLimitResponse(w, k.limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientMiddleware は未認証エンドポイント向けにクライアントIPごとのレート制限を行う。
func (rl *RateLimiter) ClientMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.client.allow(ip, rl.now()) {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", rl.client.name),
				)
				writeRateLimitResponse(w, rl.client.limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は種別ごとの管理中エントリ数を返す。テストおよび監視用。
func (rl *RateLimiter) LimiterCount() (account, upload, client int) {
	return rl.account.len(), rl.upload.len(), rl.client.len()
}

// clientIP はRemoteAddrからホスト部分を取り出す。
// プロキシ配下ではchiのRealIPミドルウェアでRemoteAddrが書き換えられている前提。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := rl.now()
	for _, k := range []*keyedLimiter{rl.account, rl.upload, rl.client} {
		k.evict(now, ttl)
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
