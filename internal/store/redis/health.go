package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/voicectl/internal/health"
)

// SaveHealth stores the latest health result of a service with a TTL
func (s *Store) SaveHealth(ctx context.Context, res health.Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal health result: %w", err)
	}
	if err := s.client.Set(ctx, HealthKey(res.Service), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save health result: %w", err)
	}
	return nil
}

// GetHealth retrieves the cached health result of a service
func (s *Store) GetHealth(ctx context.Context, service string) (health.Result, bool, error) {
	data, err := s.client.Get(ctx, HealthKey(service)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return health.Result{}, false, nil // Cache miss
		}
		return health.Result{}, false, fmt.Errorf("failed to get health result: %w", err)
	}

	var res health.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return health.Result{}, false, fmt.Errorf("failed to unmarshal health result: %w", err)
	}
	return res, true, nil
}

// DeleteHealth removes the cached health result of a service
func (s *Store) DeleteHealth(ctx context.Context, service string) error {
	if err := s.client.Del(ctx, HealthKey(service)).Err(); err != nil {
		return fmt.Errorf("failed to delete health result: %w", err)
	}
	return nil
}
