// Package redisx holds the optional Redis collaborators: the engagement event
// publisher and the idempotency-key deduper. Both are constructed once per
// process and degrade to a disabled handle when Redis is not configured or
// unreachable, so the engine never depends on Redis being up.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// pingTimeout bounds the startup reachability check.
const pingTimeout = 3 * time.Second

// Connect parses url and pings the server. An empty url yields a nil client
// and no error: Redis is simply switched off.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rc := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rc, nil
}

// ConnectOrDisable is Connect with the failure reported instead of returned.
// A nil client means every collaborator built from it runs disabled.
func ConnectOrDisable(ctx context.Context, url string, logger *log.Logger) *redis.Client {
	rc, err := Connect(ctx, url)
	switch {
	case err != nil:
		logger.WithError(err).Warn("redis unavailable; events and idempotency disabled")
	case rc == nil:
		logger.Info("redis not configured; events and idempotency disabled")
	}
	return rc
}
