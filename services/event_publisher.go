package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"starmatch_server/models"
)

// EventPublisher announces interactions to other parts of the system.
type EventPublisher interface {
	Publish(ctx context.Context, evt models.InteractionEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.InteractionEvent) error { return nil }

// MultiPublisher publishes to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, evt models.InteractionEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NatsConn is the part of *nats.Conn used for publishing.
type NatsConn interface {
	PublishMsg(m *nats.Msg) error
}

// NatsPublisher publishes events as JSON on <prefix>.<kind>.<to>.
type NatsPublisher struct {
	Conn   NatsConn
	Prefix string
}

// ConnectNats dials servers with reconnects enabled.
func ConnectNats(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func NewNatsPublisher(conn NatsConn, prefix string) *NatsPublisher {
	if prefix == "" {
		prefix = "starmatch.interactions"
	}
	return &NatsPublisher{Conn: conn, Prefix: prefix}
}

// Subject returns the subject an event is published on.
func (p *NatsPublisher) Subject(evt models.InteractionEvent) string {
	return p.Prefix + "." + evt.Kind + "." + evt.To
}

func (p *NatsPublisher) Publish(_ context.Context, evt models.InteractionEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(p.Subject(evt))
	msg.Header.Set("Kind", evt.Kind)
	msg.Header.Set("From", evt.From)
	msg.Data = data
	if err := p.Conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

var (
	_ EventPublisher = NopPublisher{}
	_ EventPublisher = MultiPublisher(nil)
	_ EventPublisher = (*NatsPublisher)(nil)
)
