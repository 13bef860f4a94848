package locks

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/veciapp/fiado/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locks",
	fx.Provide(NewKeyed),
	fx.Provide(provideRedisClient),
	fx.Provide(NewLocker),
)

// provideRedisClient returns nil when REDIS_ADDR is unset; the redis
// lock is optional and single-instance deployments run without it.
func provideRedisClient(cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	log.Info("redis lock client configured", zap.String("addr", addr))
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})
}
