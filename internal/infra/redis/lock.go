package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/usecase"
)

// Compile-time check: the Redis lock backs the submission-time
// per-document serialization.
var _ usecase.DocumentLocker = (*Locker)(nil)

type Locker struct {
	cli *Client
}

func NewLocker(c *Client) *Locker {
	return &Locker{cli: c}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrJobAlreadyActive
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli.cli, []string{key}, token).Result()
	return err
}
