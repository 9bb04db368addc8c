// Package nats publishes promotion messages over NATS.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/metrics"
	"github.com/MatusBehul/veloryn/internal/models"
)

// Header names set on every published message.
const (
	HeaderMessageID   = "Veloryn-Msg-Id"
	HeaderContentType = "Content-Type"
)

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Publisher implements interfaces.PromotionPublisher on a NATS subject.
type Publisher struct {
	conn         conn
	subject      string
	flushTimeout time.Duration
	logger       arbor.ILogger
}

// NewPublisher connects to the server in cfg.
func NewPublisher(cfg common.NATSConfig, logger arbor.ILogger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait.Duration),
		nats.Timeout(cfg.Timeout.Duration),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info().
		Str("url", cfg.URL).
		Str("subject", cfg.Subject).
		Msg("NATS promotion publisher connected")

	return newPublisher(nc, cfg.Subject, cfg.Timeout.Duration, logger), nil
}

func newPublisher(c conn, subject string, flushTimeout time.Duration, logger arbor.ILogger) *Publisher {
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	return &Publisher{conn: c, subject: subject, flushTimeout: flushTimeout, logger: logger}
}

// PublishPromotion publishes msg as JSON and waits for the server to
// acknowledge the flush.
func (p *Publisher) PublishPromotion(ctx context.Context, msg *models.PromotionMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal promotion: %w", err)
	}

	id := uuid.New().String()
	natsMsg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	natsMsg.Header.Set(HeaderMessageID, id)
	natsMsg.Header.Set(HeaderContentType, "application/json")

	if err := p.conn.PublishMsg(natsMsg); err != nil {
		return fmt.Errorf("publish promotion: %w", err)
	}

	timeout := p.flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush promotion: %w", err)
	}

	metrics.PromotionsPublishedTotal.Inc()
	p.logger.Info().
		Str("subject", p.subject).
		Str("message_id", id).
		Str("title", msg.Title).
		Int("series_points", len(msg.SeriesData)).
		Msg("Promotion published")

	return nil
}

// Close closes the connection.
func (p *Publisher) Close() error {
	p.conn.Close()
	return nil
}
