// db/redis.go
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
)

var RedisClient *redis.Client

func InitRedis() error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         viper.GetString("redis.addr"),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		DialTimeout:  viper.GetDuration("redis.dialTimeout"),
		ReadTimeout:  viper.GetDuration("redis.readTimeout"),
		WriteTimeout: viper.GetDuration("redis.writeTimeout"),
		PoolSize:     viper.GetInt("redis.poolSize"),
		PoolTimeout:  viper.GetDuration("redis.poolTimeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis")
	return nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", zap.Error(err))
		}
	}
}

// CachePolicy mirrors a policy record in Redis with the default TTL. The
// mirror serves single-policy admin reads only; evaluation always runs
// against the in-memory snapshot.
func CachePolicy(ctx context.Context, policy *model.Policy) error {
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	key := fmt.Sprintf("policy:%s", policy.PolicyID)
	defaultTTL := viper.GetDuration("redis.defaultCacheTTL")
	err = RedisClient.Set(ctx, key, policyJSON, defaultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache policy: %w", err)
	}

	logger.Debug("Policy cached successfully", zap.String("policyID", policy.PolicyID))
	return nil
}

func GetCachedPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	key := fmt.Sprintf("policy:%s", policyID)
	policyJSON, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		logger.Debug("Policy not found in cache", zap.String("policyID", policyID))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get policy from cache: %w", err)
	}

	var policy model.Policy
	if err := json.Unmarshal([]byte(policyJSON), &policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	logger.Debug("Policy retrieved from cache", zap.String("policyID", policyID))
	return &policy, nil
}

func DeleteCachedPolicy(ctx context.Context, policyID string) error {
	key := fmt.Sprintf("policy:%s", policyID)
	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete policy from cache: %w", err)
	}
	logger.Debug("Policy deleted from cache", zap.String("policyID", policyID))
	return nil
}

// RateLimit implements a fixed-window request counter per key.
func RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	windowKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := RedisClient.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := RedisClient.Expire(ctx, windowKey, per).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}
