package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Identity resolves a session token to the principal that owns it.
// ok is false when the token is unknown or expired.
type Identity interface {
	Resolve(ctx context.Context, token string) (principal Principal, ok bool, err error)
}

const redisSessionPrefix = "session:"

type redisIdentity struct {
	client *redis.Client
}

func newRedisIdentity(client *redis.Client) *redisIdentity {
	return &redisIdentity{client: client}
}

func (i *redisIdentity) Resolve(ctx context.Context, token string) (Principal, bool, error) {
	if token == "" {
		return Principal{}, false, nil
	}
	userID, err := i.client.Get(ctx, redisSessionPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return Principal{}, false, nil
	}
	if err != nil {
		return Principal{}, false, fmt.Errorf("redis session lookup: %w", err)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, false, nil
	}
	return Principal{ID: userID}, true, nil
}

type sessionLookup interface {
	GetSessionUser(ctx context.Context, token string) (string, error)
}

// sqlIdentity reads unexpired rows from user_sessions.
type sqlIdentity struct {
	sessions sessionLookup
}

func newSQLIdentity(sessions sessionLookup) *sqlIdentity {
	return &sqlIdentity{sessions: sessions}
}

func (i *sqlIdentity) Resolve(ctx context.Context, token string) (Principal, bool, error) {
	if token == "" {
		return Principal{}, false, nil
	}
	userID, err := i.sessions.GetSessionUser(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, false, nil
	}
	if err != nil {
		return Principal{}, false, fmt.Errorf("session lookup: %w", err)
	}
	return Principal{ID: userID}, true, nil
}
