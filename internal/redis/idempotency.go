package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyTTL is how long a completed response is replayable.
	IdempotencyTTL = 24 * time.Hour

	// processingTTL bounds how long an unfinished request holds its key.
	processingTTL = 2 * time.Minute

	processingMarker = "processing"
)

// ErrRequestInFlight means another request with the same key is still
// being processed.
var ErrRequestInFlight = errors.New("a request with this idempotency key is in progress")

// CachedResponse is a stored HTTP response for replay.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  int64           `json:"created_at"`
}

type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

// Keys are scoped per user so two users may reuse the same key.
func (s *IdempotencyService) buildKey(userID int64, scope, idempotencyKey string) string {
	return s.client.key("idempotency", strconv.FormatInt(userID, 10), scope, idempotencyKey)
}

// Check returns the cached response, (nil, nil) when the key is unused, or
// ErrRequestInFlight while the first request is still running.
func (s *IdempotencyService) Check(ctx context.Context, userID int64, scope, idempotencyKey string) (*CachedResponse, error) {
	key := s.buildKey(userID, scope, idempotencyKey)

	val, err := s.client.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == processingMarker {
		return nil, ErrRequestInFlight
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		s.logger.Error("failed to unmarshal cached response", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("invalid cached response: %w", err)
	}

	return &cached, nil
}

// Store saves a completed response, replacing the processing marker.
func (s *IdempotencyService) Store(ctx context.Context, userID int64, scope, idempotencyKey string, resp *CachedResponse, ttl time.Duration) error {
	key := s.buildKey(userID, scope, idempotencyKey)

	if resp.CreatedAt == 0 {
		resp.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := s.client.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Reserve claims the key with SET NX. It returns false if the key exists.
func (s *IdempotencyService) Reserve(ctx context.Context, userID int64, scope, idempotencyKey string) (bool, error) {
	key := s.buildKey(userID, scope, idempotencyKey)

	set, err := s.client.rdb.SetNX(ctx, key, processingMarker, processingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	return set, nil
}

// Release drops a reservation so the client can retry after a failure.
// A stored response is left alone.
func (s *IdempotencyService) Release(ctx context.Context, userID int64, scope, idempotencyKey string) error {
	key := s.buildKey(userID, scope, idempotencyKey)

	val, err := s.client.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if val != processingMarker {
		return nil
	}

	if err := s.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// CheckOrReserve returns a cached response if there is one, otherwise
// reserves the key and returns (nil, nil).
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, userID int64, scope, idempotencyKey string) (*CachedResponse, error) {
	cached, err := s.Check(ctx, userID, scope, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	reserved, err := s.Reserve(ctx, userID, scope, idempotencyKey)
	if err != nil {
		return nil, err
	}

	if !reserved {
		return nil, ErrRequestInFlight
	}

	return nil, nil
}
