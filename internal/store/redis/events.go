package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

// DefaultEventHistory is how many events are kept per service.
const DefaultEventHistory = 200

// Store handles Redis operations for the lifecycle journal and health cache
type Store struct {
	client  *redis.Client
	history int64
}

// NewStore creates a new Redis store keeping history events per service
func NewStore(client *redis.Client, history int) *Store {
	if history <= 0 {
		history = DefaultEventHistory
	}
	return &Store{
		client:  client,
		history: int64(history),
	}
}

// AppendEvent pushes an event to the head of the service journal and trims
// the journal to the configured history.
func (s *Store) AppendEvent(ctx context.Context, ev supervisor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := EventsKey(ev.Service)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Events returns up to limit events for a service, newest first
func (s *Store) Events(ctx context.Context, service string, limit int) ([]supervisor.Event, error) {
	if limit <= 0 || int64(limit) > s.history {
		limit = int(s.history)
	}

	raw, err := s.client.LRange(ctx, EventsKey(service), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]supervisor.Event, 0, len(raw))
	for _, item := range raw {
		var ev supervisor.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			// Skip entries that couldn't be decoded
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
