package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ration:session:"

// RedisStore хранит сессии в Redis: хеш на сессию, срок жизни через EXPIRE.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore подключается к Redis по URL и проверяет соединение.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient создаёт хранилище поверх готового клиента.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (r *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	result, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}

	s := &Session{
		ID:        id,
		Token:     result["token"],
		CSRFToken: result["csrf"],
		CreatedAt: parseUnix(result["created_at"]),
		ExpiresAt: parseUnix(result["expires_at"]),
	}
	if v := result["user"]; v != "" {
		if err := json.Unmarshal([]byte(v), &s.User); err != nil {
			return nil, fmt.Errorf("decode session user: %w", err)
		}
	}
	if v := result["notices"]; v != "" {
		if err := json.Unmarshal([]byte(v), &s.Notices); err != nil {
			return nil, fmt.Errorf("decode session notices: %w", err)
		}
	}

	if s.Expired(r.now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, s.ID)
	}

	user, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	notices, err := json.Marshal(s.Notices)
	if err != nil {
		return fmt.Errorf("encode session notices: %w", err)
	}

	key := r.key(s.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"id":         s.ID,
		"token":      s.Token,
		"csrf":       s.CSRFToken,
		"user":       string(user),
		"notices":    string(notices),
		"created_at": s.CreatedAt.Unix(),
		"expires_at": s.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseUnix(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
