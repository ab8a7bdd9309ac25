package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medterm/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetLookup caches a concept-lookup response under the hash of its query.
func (c *Client) SetLookup(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("lookup:%s", queryHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set lookup cache: %w", err)
	}

	logger.Debug("Concept lookup cached", zap.String("query_hash", queryHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetLookup(ctx context.Context, queryHash string, response interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("lookup:%s", queryHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get lookup cache: %w", err)
	}

	err = json.Unmarshal(data, response)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Debug("Concept lookup cache hit", zap.String("query_hash", queryHash))
	return true, nil
}

// SetSynonyms caches a generated synonym list for a term/language/context
// triple. Synonym generation is the most expensive LLM call, so repeated
// requests for the same triple should not hit the provider again.
func (c *Client) SetSynonyms(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("synonyms:%s", queryHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set synonym cache: %w", err)
	}

	logger.Debug("Synonyms cached", zap.String("query_hash", queryHash))
	return nil
}

func (c *Client) GetSynonyms(ctx context.Context, queryHash string, response interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("synonyms:%s", queryHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get synonym cache: %w", err)
	}

	err = json.Unmarshal(data, response)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Debug("Synonym cache hit", zap.String("query_hash", queryHash))
	return true, nil
}

// InvalidateLookupCache drops all cached concept-lookup responses, e.g. after
// the upstream directory publishes a new vocabulary release.
func (c *Client) InvalidateLookupCache(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "lookup:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Concept lookup cache invalidated")
	return nil
}
