package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionStore keeps opaque login tokens in Redis. A user holds at most one
// session; logging in again replaces it and restarts the 7-day timer.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// CreateSession issues a new token for userID, invalidating any previous one.
func (s *SessionStore) CreateSession(ctx context.Context, userID string) (string, error) {
	if err := s.InvalidateUserSessions(ctx, userID); err != nil {
		return "", err
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "generate session token")
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, SessionKeyPrefix+token, userID, SessionDuration)
	pipe.Set(ctx, UserSessionKeyPrefix+userID, token, SessionDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", errors.Wrap(err, "store session")
	}
	return token, nil
}

// ValidateSession returns the user owning token. An unknown or expired
// token yields ("", false, nil).
func (s *SessionStore) ValidateSession(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	userID, err := s.rdb.Get(ctx, SessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "load session")
	}
	return userID, true, nil
}

// InvalidateSession removes a session and its user mapping.
func (s *SessionStore) InvalidateSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	sessionKey := SessionKeyPrefix + token
	userID, err := s.rdb.Get(ctx, sessionKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "load session")
	}
	if userID != "" {
		// only drop the mapping when it still points at this token
		current, _ := s.rdb.Get(ctx, UserSessionKeyPrefix+userID).Result()
		if current == token {
			s.rdb.Del(ctx, UserSessionKeyPrefix+userID)
		}
	}
	return errors.Wrap(s.rdb.Del(ctx, sessionKey).Err(), "delete session")
}

// InvalidateUserSessions drops whatever session userID currently holds.
func (s *SessionStore) InvalidateUserSessions(ctx context.Context, userID string) error {
	userSessionKey := UserSessionKeyPrefix + userID

	token, err := s.rdb.Get(ctx, userSessionKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "load user session")
	}
	if token != "" {
		s.rdb.Del(ctx, SessionKeyPrefix+token)
	}
	return errors.Wrap(s.rdb.Del(ctx, userSessionKey).Err(), "delete user session")
}
