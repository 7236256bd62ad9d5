package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	natsClientName    = "cartridge-replay"
	natsReconnectWait = 2 * time.Second
	natsMaxReconnects = -1
	natsDrainTimeout  = 5 * time.Second
)

// NATSPublisher publishes replay buffer events as JSON. Stats go to subject,
// eviction events to subject + ".eviction".
type NATSPublisher struct {
	conn            *nats.Conn
	statsSubject    string
	evictionSubject string
	logger          zerolog.Logger
}

// NewNATSPublisher connects to natsURL. The connection reconnects forever;
// publishes made while disconnected are buffered by the client.
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "nats_publisher").Logger()

	conn, err := nats.Connect(natsURL,
		nats.Name(natsClientName),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DrainTimeout(natsDrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", natsURL, err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Str("subject", subject).Msg("Connected to NATS")
	return &NATSPublisher{
		conn:            conn,
		statsSubject:    subject,
		evictionSubject: subject + ".eviction",
		logger:          logger,
	}, nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSPublisher) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		n.conn.Close()
	}
}

// PublishBufferStats implements Publisher.
func (n *NATSPublisher) PublishBufferStats(ctx context.Context, event BufferStatsEvent) error {
	if err := n.publish(ctx, n.statsSubject, event); err != nil {
		return err
	}
	n.logger.Debug().
		Uint64("size", event.Size).
		Str("subject", n.statsSubject).
		Msg("Published buffer stats event")
	return nil
}

// PublishEviction implements Publisher.
func (n *NATSPublisher) PublishEviction(ctx context.Context, event EvictionEvent) error {
	if err := n.publish(ctx, n.evictionSubject, event); err != nil {
		return err
	}
	n.logger.Debug().
		Int("count", event.Count).
		Str("subject", n.evictionSubject).
		Msg("Published eviction event")
	return nil
}

func (n *NATSPublisher) publish(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", subject, err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}
