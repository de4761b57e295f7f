package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"qr-attendance/internal/model"
	"qr-attendance/pkg/redis"
)

// TokenCache 已签发二维码令牌的读穿缓存
// 上课开始时大量学生同时扫同一个码，缓存可避免每次都回源查询 qr_tokens
type TokenCache interface {
	Get(ctx context.Context, tokenID string) (*model.QRToken, error)
	Set(ctx context.Context, token *model.QRToken, ttl time.Duration) error
}

const tokenCachePrefix = "qra:qrtoken:"

type redisTokenCache struct {
	rdb *redis.Client
}

// NewRedisTokenCache 基于 Redis 的令牌缓存；rdb 为 nil 时返回 nil（不启用缓存）
func NewRedisTokenCache(rdb *redis.Client) TokenCache {
	if rdb == nil {
		return nil
	}
	return &redisTokenCache{rdb: rdb}
}

func (c *redisTokenCache) Get(ctx context.Context, tokenID string) (*model.QRToken, error) {
	b, err := c.rdb.GetBytes(ctx, tokenCachePrefix+tokenID)
	if err != nil {
		return nil, err
	}
	var token model.QRToken
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (c *redisTokenCache) Set(ctx context.Context, token *model.QRToken, ttl time.Duration) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.rdb.SetBytes(ctx, tokenCachePrefix+token.TokenID, b, ttl)
}

func isCacheMiss(err error) bool {
	return errors.Is(err, redis.ErrCacheMiss)
}
