package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore manages bearer-token API sessions backed by Redis. Tokens are
// presented in the Authorization header; the stored payload carries the actor.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

type sessionPayload struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Create issues a new session token for the actor.
func (s *SessionStore) Create(ctx context.Context, actor Actor) (string, error) {
	token := generateToken()
	data, err := json.Marshal(sessionPayload{UserID: actor.UserID, Name: actor.Name, Email: actor.Email})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, sessionKey(token), data, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve looks up the actor for a token, refreshing the TTL on hit.
func (s *SessionStore) Resolve(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrSessionExpired
	}
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Actor{}, ErrSessionExpired
		}
		return Actor{}, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Actor{}, err
	}
	_ = s.client.Expire(ctx, sessionKey(token), s.ttl).Err()
	return Actor{UserID: payload.UserID, Name: payload.Name, Email: payload.Email}, nil
}

// Revoke deletes a session token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	err := s.client.Del(ctx, sessionKey(token)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func sessionKey(token string) string {
	return "session:" + token
}

func generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
