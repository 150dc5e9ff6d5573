package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"devportal/internal/authflow/models"
	id "devportal/pkg/domain"
)

// RedisCodeStore stores authorization codes in Redis. The key TTL mirrors the
// code lifetime, so expiry needs no sweeper, and consumption is a single
// GETDEL so two racing redemptions cannot both win.
type RedisCodeStore struct {
	client *redis.Client
}

// NewRedisCodes constructs a Redis-backed code store.
func NewRedisCodes(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func codeKey(code string) string {
	return "authcode:" + code
}

// codePayload is the stored wire form. IDs are serialized as strings to keep
// the payload inspectable with redis-cli.
type codePayload struct {
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	Role          string    `json:"role"`
	RedirectURI   string    `json:"redirectUri"`
	CodeChallenge string    `json:"codeChallenge"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s *RedisCodeStore) Create(ctx context.Context, code *models.AuthorizationCode) error {
	payload, err := json.Marshal(codePayload{
		ApplicationID: code.ApplicationID.String(),
		UserID:        code.UserID.String(),
		Role:          string(code.Role),
		RedirectURI:   code.RedirectURI,
		CodeChallenge: code.CodeChallenge,
		CreatedAt:     code.CreatedAt,
		ExpiresAt:     code.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal authorization code: %w", err)
	}
	ttl := code.ExpiresAt.Sub(code.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired: %w", ErrExpired)
	}
	if err := s.client.Set(ctx, codeKey(code.Code), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store authorization code: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the code. A missing key covers both
// never-issued and already-consumed codes; Redis expiry covers stale ones.
// The stored expiry is still checked against the injected clock so a key that
// outlives a clock skew cannot redeem late.
func (s *RedisCodeStore) Consume(ctx context.Context, code string, now time.Time) (*models.AuthorizationCode, error) {
	raw, err := s.client.GetDel(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("authorization code not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	var payload codePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal authorization code: %w", err)
	}
	if !now.Before(payload.ExpiresAt) {
		return nil, fmt.Errorf("authorization code expired: %w", ErrExpired)
	}

	appID, err := id.ParseApplicationID(payload.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("parse stored application id: %w", err)
	}
	userID, err := id.ParseUserID(payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse stored user id: %w", err)
	}

	return &models.AuthorizationCode{
		Code:          code,
		ApplicationID: appID,
		UserID:        userID,
		Role:          id.Role(payload.Role),
		RedirectURI:   payload.RedirectURI,
		CodeChallenge: payload.CodeChallenge,
		CreatedAt:     payload.CreatedAt,
		ExpiresAt:     payload.ExpiresAt,
		Used:          true,
	}, nil
}
