package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/guildboard/guildboard/internal/domain"
)

// DefaultChannel is the pub/sub channel engagement events go to.
const DefaultChannel = "guild.engagement"

// Publisher broadcasts engagement events over Redis pub/sub.
// A Publisher with a nil client is disabled and drops every event.
type Publisher struct {
	client  *redis.Client
	channel string
	log     *log.Logger
}

var _ domain.Publisher = (*Publisher)(nil)

// NewPublisher wraps rc. Pass a nil rc for a disabled publisher.
func NewPublisher(rc *redis.Client, channel string, logger *log.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: rc, channel: channel, log: logger}
}

// Enabled reports whether events actually leave the process.
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

// Channel returns the channel events are published on.
func (p *Publisher) Channel() string { return p.channel }

// Publish sends e as JSON. It is a no-op when the publisher is disabled.
func (p *Publisher) Publish(ctx context.Context, e domain.EngagementEvent) error {
	if !p.Enabled() {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	if p.log != nil {
		p.log.WithFields(log.Fields{
			"channel": p.channel,
			"type":    e.Type,
			"user":    e.UserID,
		}).Debug("engagement event published")
	}
	return nil
}
