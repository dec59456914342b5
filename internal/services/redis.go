package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dice-prediction-backend/internal/config"
	"dice-prediction-backend/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// RedisService stores API sessions and rate limit counters. Game data is
// never cached here; history is always derived from the ledger.
type RedisService struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	service := &RedisService{
		client: client,
		ctx:    ctx,
	}

	return service, nil
}

func sessionKey(address, sessionID string) string {
	return fmt.Sprintf(KeyUserSession, strings.ToLower(address), sessionID)
}

func (s *RedisService) StoreUserSession(session *models.UserSession, expiry time.Duration) error {
	if expiry <= 0 {
		expiry = TTLUserSession
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.client.Set(s.ctx, sessionKey(session.Address, session.SessionID), data, expiry).Err()
}

// GetUserSession loads a session and bumps its LastAccessed time without
// extending its lifetime.
func (s *RedisService) GetUserSession(address, sessionID string) (*models.UserSession, error) {
	key := sessionKey(address, sessionID)

	data, err := s.client.Get(s.ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.UserSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session.LastAccessed = time.Now()
	if updated, err := json.Marshal(session); err == nil {
		s.client.SetArgs(s.ctx, key, updated, redis.SetArgs{KeepTTL: true})
	}

	return &session, nil
}

func (s *RedisService) DeleteUserSession(address, sessionID string) error {
	return s.client.Del(s.ctx, sessionKey(address, sessionID)).Err()
}

// CheckRateLimit counts one action for address and reports whether it is
// still within limit for the current window.
func (s *RedisService) CheckRateLimit(address, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, strings.ToLower(address), action)

	count, err := s.client.Incr(s.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(s.ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(address, action string) error {
	key := fmt.Sprintf(KeyRateLimit, strings.ToLower(address), action)
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
