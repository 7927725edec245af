package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "AVA-Chain/internal/errors"
)

// RedisConfig 描述 Redis 情报存储的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Namespace string
}

// RedisStore 使用 Redis 持久化智能体的情报与思维链。
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore 创建 Redis 存储实例。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "ava:memory"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, namespace: namespace}, nil
}

func (s *RedisStore) key(key string) string {
	return s.namespace + ":" + key
}

func (s *RedisStore) cotKey(key string) string {
	return s.namespace + ":cot:" + key
}

// Store 以 JSON 形式写入一条记录。
func (s *RedisStore) Store(ctx context.Context, key string, data any, metadata map[string]any) error {
	if key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "存储键不能为空")
	}
	entry := Entry{Data: data, Metadata: metadata, StoredAt: time.Now().Unix()}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化存储记录失败: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), encoded, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 写入失败")
	}
	return nil
}

// Retrieve 读取一条记录。
func (s *RedisStore) Retrieve(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 读取失败")
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("解析存储记录失败: %w", err)
	}
	return &entry, nil
}

// StoreCoT 写入一段思维链。
func (s *RedisStore) StoreCoT(ctx context.Context, key string, thoughts []string, metadata map[string]any) error {
	if key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "存储键不能为空")
	}
	entry := CoTEntry{Thoughts: thoughts, Metadata: metadata, StoredAt: time.Now().Unix()}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化思维链失败: %w", err)
	}
	if err := s.client.Set(ctx, s.cotKey(key), encoded, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 写入失败")
	}
	return nil
}

// RetrieveCoT 读取一段思维链。
func (s *RedisStore) RetrieveCoT(ctx context.Context, key string) (*CoTEntry, error) {
	raw, err := s.client.Get(ctx, s.cotKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 读取失败")
	}
	var entry CoTEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("解析思维链失败: %w", err)
	}
	return &entry, nil
}

// Delete 删除一条记录。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key), s.cotKey(key)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 删除失败")
	}
	return nil
}

// List 通过 SCAN 返回具有指定前缀的键（去掉命名空间）。
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.key(prefix) + "*"
	keys := make([]string, 0)
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.namespace)+1:])
	}
	if err := iter.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis SCAN 失败")
	}
	return keys, nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
