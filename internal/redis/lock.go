package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockBusy = errors.New("lock busy")

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only if we still own the key.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a lock.Locker backed by SET NX PX, for deployments running more
// than one replica. A held lock is renewed every ttl/3 until released, so the
// ttl only bounds how long a crashed holder can block the pair.
type Locker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	maxWait time.Duration
	log     *zap.SugaredLogger
}

func NewLocker(r *redis.Client, prefix string, ttl time.Duration, log *zap.SugaredLogger) *Locker {
	return &Locker{client: r, prefix: prefix, ttl: ttl, maxWait: ttl, log: log}
}

func (l *Locker) key(k string) string { return fmt.Sprintf("%s:lock:%s", l.prefix, k) }

func renewInterval(ttl time.Duration) time.Duration {
	if d := ttl / 3; d > 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.key(key)
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = l.maxWait

	op := func() error {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockBusy
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(k, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{k}, token).Err(); err != nil {
				l.log.Warnw("release pair lock", "key", k, "err", err)
			}
		})
	}, nil
}

func (l *Locker) keepAlive(k, token string, stop <-chan struct{}) {
	t := time.NewTicker(renewInterval(l.ttl))
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			n, err := renewScript.Run(rctx, l.client, []string{k}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.log.Warnw("renew pair lock", "key", k, "err", err)
				continue
			}
			if n == 0 {
				l.log.Errorw("pair lock lost before release", "key", k)
				return
			}
		}
	}
}
