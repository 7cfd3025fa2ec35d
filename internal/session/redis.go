package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routelens/routelens/internal/models"
)

// transitionScript is the Redis-side CAS: swap status only if the hash still
// holds the expected one, writing error/result in the same atomic step.
// Returns -1 when the key is missing, 0 when the CAS loses, 1 on success.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'error', ARGV[3])
end
if ARGV[4] ~= '' then
	redis.call('HSET', KEYS[1], 'result', ARGV[4])
end
return 1
`)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long finished sessions stay pollable. Zero keeps them
	// forever.
	TTL time.Duration
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// NewRedisStoreWithClient wraps an existing client, which is what the tests
// use with an in-process server.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *RedisStore) Create(ctx context.Context, sess *models.AnalysisSession) error {
	key := sessionKey(sess.ID)

	fields := map[string]interface{}{
		"sport_type":      string(sess.SportType),
		"status":          string(sess.Status),
		"created_at":      sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		"video_reference": sess.VideoReference,
		"progress":        sess.Progress,
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("set session ttl: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	progress, _ := strconv.Atoi(fields["progress"])

	sess := &models.AnalysisSession{
		ID:             id,
		SportType:      models.SportType(fields["sport_type"]),
		Status:         models.SessionStatus(fields["status"]),
		CreatedAt:      createdAt,
		VideoReference: fields["video_reference"],
		Progress:       progress,
	}

	if raw := fields["error"]; raw != "" {
		var sessErr models.SessionError
		if err := json.Unmarshal([]byte(raw), &sessErr); err != nil {
			return nil, fmt.Errorf("decode session error: %w", err)
		}
		sess.Error = &sessErr
	}
	if raw := fields["result"]; raw != "" {
		var result models.CompositeResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("decode session result: %w", err)
		}
		sess.Result = &result
	}
	return sess, nil
}

func (s *RedisStore) Transition(ctx context.Context, id string, from, to models.SessionStatus, payload TransitionPayload) error {
	if !from.CanTransitionTo(to) {
		return ErrConflict
	}

	var errorJSON, resultJSON string
	if payload.Error != nil {
		data, err := json.Marshal(payload.Error)
		if err != nil {
			return fmt.Errorf("encode session error: %w", err)
		}
		errorJSON = string(data)
	}
	if payload.Result != nil {
		data, err := json.Marshal(payload.Result)
		if err != nil {
			return fmt.Errorf("encode session result: %w", err)
		}
		resultJSON = string(data)
	}

	res, err := transitionScript.Run(ctx, s.client,
		[]string{sessionKey(id)},
		string(from), string(to), errorJSON, resultJSON,
	).Int()
	if err != nil {
		return fmt.Errorf("run transition script: %w", err)
	}
	switch res {
	case -1:
		return ErrNotFound
	case 0:
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) SetProgress(ctx context.Context, id string, progress int) error {
	if err := s.client.HSet(ctx, sessionKey(id), "progress", progress).Err(); err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
