package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lvdashuaibi/onevote/config"
	"github.com/lvdashuaibi/onevote/internal/model"
)

const (
	// Redis键前缀
	CandidateListKey  = "candidate:list"
	CandidateTallyKey = "candidate:tally"
	CandidateGenKey   = "candidate:gen"
	AuditVotedKey     = "audit:voted"
)

// setIfGenScript 只有在缓存代数没有变化时才写入，KEYS[1]为数据键，KEYS[2]为代数键
var setIfGenScript = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// recordVoteScript 第一次出现写入指纹返回0，指纹相同返回0，指纹不同返回1
var recordVoteScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 1 then
	return 0
end
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return 0
end
return 1
`)

// RedisRepository 候选人列表和票数排行的缓存，以及审计用的已投票集合
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(cfg config.RedisConfig) (*RedisRepository, error) {
	// 创建Redis客户端（普通客户端，用于数据缓存）
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	// 测试连接
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	return NewRedisRepositoryWithClient(client, cfg.CacheTTL), nil
}

func NewRedisRepositoryWithClient(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisRepository{client: client, ttl: ttl}
}

func (r *RedisRepository) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil // 缓存未命中
		}
		return false, fmt.Errorf("读取缓存 %s 失败: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("解析缓存 %s 失败: %w", key, err)
	}
	return true, nil
}

// setJSONIfGen 读取数据前记下的代数与当前代数一致才写入，期间有失效则放弃
func (r *RedisRepository) setJSONIfGen(ctx context.Context, key string, gen int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化缓存 %s 失败: %w", key, err)
	}
	keys := []string{key, CandidateGenKey}
	args := []interface{}{strconv.FormatInt(gen, 10), data, r.ttl.Milliseconds()}
	if err := setIfGenScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("写入缓存 %s 失败: %w", key, err)
	}
	return nil
}

// Generation 返回当前缓存代数，读库之前调用
func (r *RedisRepository) Generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, CandidateGenKey).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("读取缓存代数失败: %w", err)
	}
	return gen, nil
}

// GetCandidateList 从缓存获取公开候选人列表
func (r *RedisRepository) GetCandidateList(ctx context.Context) ([]model.CandidateSummary, bool, error) {
	var list []model.CandidateSummary
	found, err := r.getJSON(ctx, CandidateListKey, &list)
	return list, found, err
}

func (r *RedisRepository) SetCandidateList(ctx context.Context, gen int64, list []model.CandidateSummary) error {
	return r.setJSONIfGen(ctx, CandidateListKey, gen, list)
}

// GetTally 从缓存获取票数排行
func (r *RedisRepository) GetTally(ctx context.Context) ([]model.PartyTally, bool, error) {
	var tally []model.PartyTally
	found, err := r.getJSON(ctx, CandidateTallyKey, &tally)
	return tally, found, err
}

func (r *RedisRepository) SetTally(ctx context.Context, gen int64, tally []model.PartyTally) error {
	return r.setJSONIfGen(ctx, CandidateTallyKey, gen, tally)
}

// InvalidateCandidates 递增缓存代数并删除候选人相关缓存
func (r *RedisRepository) InvalidateCandidates(ctx context.Context) error {
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, CandidateGenKey)
	pipe.Del(ctx, CandidateListKey)
	pipe.Del(ctx, CandidateTallyKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("删除候选人缓存失败: %w", err)
	}
	return nil
}

// RecordVote 记录选民的投票指纹，返回true表示该选民之前以不同的指纹出现过。
// 同一事件被重复投递时指纹相同，不算冲突。
func (r *RedisRepository) RecordVote(ctx context.Context, voterID, fingerprint string) (bool, error) {
	conflict, err := recordVoteScript.Run(ctx, r.client, []string{AuditVotedKey}, voterID, fingerprint).Int()
	if err != nil {
		return false, fmt.Errorf("写入审计记录失败: %w", err)
	}
	return conflict == 1, nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
