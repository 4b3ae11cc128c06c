package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lvdashuaibi/onevote/config"
)

const (
	redlockKeyPrefix = "onevote:lock:"
	redlockRetryWait = 100 * time.Millisecond
)

// 只有token匹配时才续期
var refreshScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// 只有token匹配时才删除
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedLock 在多个独立Redis节点上实现的Redlock算法
type RedLock struct {
	clients []*redis.Client
	addrs   []string
	logger  *slog.Logger
	retries int

	mu    sync.Mutex
	locks map[string]string // 锁名 -> token
}

// NewRedLock 创建新的分布式锁客户端
func NewRedLock(redisCfg config.RedisConfig, lockCfg config.LockConfig, logger *slog.Logger) (*RedLock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()

	// 创建多个独立的Redis客户端
	var clients []*redis.Client
	for _, addr := range redisCfg.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     redisCfg.Password,
			DB:           redisCfg.DB,
			PoolSize:     redisCfg.PoolSize,
			MaxRetries:   redisCfg.MaxRetries,
			DialTimeout:  redisCfg.Timeout,
			ReadTimeout:  redisCfg.Timeout,
			WriteTimeout: redisCfg.Timeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("Redis锁节点 %s 连接测试失败: %w", addr, err)
		}
		clients = append(clients, client)
	}

	return newRedLock(clients, redisCfg.LockAddresses, lockCfg.RetryCount, logger), nil
}

func newRedLock(clients []*redis.Client, addrs []string, retries int, logger *slog.Logger) *RedLock {
	if retries <= 0 {
		retries = 1
	}
	return &RedLock{
		clients: clients,
		addrs:   addrs,
		logger:  logger,
		retries: retries,
		locks:   make(map[string]string),
	}
}

func (r *RedLock) quorum() int {
	return len(r.clients)/2 + 1
}

// AcquireLock 在多数节点上加锁成功才算获取成功
func (r *RedLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locks[lockName]; ok {
		return true, nil
	}

	key := redlockKeyPrefix + lockName
	token := uuid.NewString()

	for attempt := 0; attempt < r.retries; attempt++ {
		success := 0
		start := time.Now()

		for i, client := range r.clients {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			ok, err := client.SetNX(ctx, key, token, timeout).Result()
			cancel()
			if err != nil {
				r.logger.Warn("节点加锁失败", "event", "redlock_node_error", "node", r.addrs[i], "lock", lockName, "error", err)
				continue
			}
			if ok {
				success++
			}
		}

		// 扣除加锁耗时后的剩余有效期
		validity := timeout - time.Since(start)
		if success >= r.quorum() && validity > 0 {
			r.locks[lockName] = token
			r.logger.Debug("获取锁成功", "event", "redlock_acquired", "lock", lockName)
			return true, nil
		}

		r.unlockAll(key, token)
		time.Sleep(redlockRetryWait)
	}

	return false, nil
}

// RefreshLock 刷新锁的过期时间
func (r *RedLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.locks[lockName]
	if !ok {
		return false, fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	key := redlockKeyPrefix + lockName
	success := 0
	for i, client := range r.clients {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		result, err := refreshScript.Run(ctx, client, []string{key}, token, timeout.Milliseconds()).Int64()
		cancel()
		if err != nil {
			r.logger.Warn("节点续期失败", "event", "redlock_node_error", "node", r.addrs[i], "lock", lockName, "error", err)
			continue
		}
		if result == 1 {
			success++
		}
	}

	if success >= r.quorum() {
		return true, nil
	}

	delete(r.locks, lockName)
	return false, nil
}

// ReleaseLock 释放分布式锁
func (r *RedLock) ReleaseLock(lockName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.locks[lockName]
	if !ok {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	r.unlockAll(redlockKeyPrefix+lockName, token)
	delete(r.locks, lockName)
	return nil
}

// unlockAll 在所有节点上释放锁，调用方需持有r.mu
func (r *RedLock) unlockAll(key, token string) {
	for i, client := range r.clients {
		if err := unlockScript.Run(context.Background(), client, []string{key}, token).Err(); err != nil {
			r.logger.Warn("节点解锁失败", "event", "redlock_node_error", "node", r.addrs[i], "key", key, "error", err)
		}
	}
}

// ReleaseAllLocks 释放所有持有的锁
func (r *RedLock) ReleaseAllLocks() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, token := range r.locks {
		r.unlockAll(redlockKeyPrefix+name, token)
	}
	r.locks = make(map[string]string)
}

// Close 关闭分布式锁客户端
func (r *RedLock) Close() error {
	r.ReleaseAllLocks()

	for i, client := range r.clients {
		if err := client.Close(); err != nil {
			r.logger.Warn("关闭Redis客户端失败", "event", "redlock_close_failed", "node", r.addrs[i], "error", err)
		}
	}
	return nil
}
