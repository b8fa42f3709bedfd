package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// ErrNotConnected is returned while the NATS connection is down
var ErrNotConnected = errors.New("NATS not connected")

// NATSPublisher handles publishing events to NATS JetStream
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	config config.NATSConfig
	logger *logger.Logger

	mu        sync.RWMutex
	connected bool
}

// NewNATSPublisher creates a new NATS publisher
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	log = log.WithComponent("nats")

	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "HONEYPOT_INTEL"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "honeypot"
	}

	log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("connecting to NATS")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("honeypot-lab"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Honeypot intelligence events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1_000_000,
		MaxBytes:    512 * 1024 * 1024,
		Discard:     jetstream.DiscardOld,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	stream, err := js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	log.Info().Str("stream", stream.CachedInfo().Config.Name).Msg("NATS stream ready")

	return &NATSPublisher{
		conn:      conn,
		js:        js,
		stream:    stream,
		config:    cfg,
		logger:    log,
		connected: true,
	}, nil
}

// Close closes the NATS connection
func (p *NATSPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.connected = false
	}
}

// IsConnected returns whether NATS is connected
func (p *NATSPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.conn.IsConnected()
}

// IntelSubject returns the subject new indicators of kind are published on
func IntelSubject(prefix string, kind models.IndicatorKind) string {
	return fmt.Sprintf("%s.intel.%s", prefix, kind)
}

// FinalizedSubject returns the subject finalized sessions are published on
func FinalizedSubject(prefix string) string {
	return prefix + ".session.finalized"
}

// PublishIntel publishes one event per newly surfaced indicator
func (p *NATSPublisher) PublishIntel(ctx context.Context, s models.Session, added models.IndicatorSet) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	var errs []error
	events := NewIntelEvents(s, added)
	for _, event := range events {
		subject := IntelSubject(p.config.SubjectPrefix, event.Kind)
		if err := p.publish(ctx, subject, event.ID, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to publish %d of %d intel events: %w", len(errs), len(events), errors.Join(errs...))
	}

	p.logger.Debug().
		Str("session_id", s.ID).
		Int("events", len(events)).
		Msg("published intel events")
	return nil
}

// PublishFinalized publishes a session finalized event
func (p *NATSPublisher) PublishFinalized(ctx context.Context, s models.Session, metrics models.EngagementMetrics) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	event := NewSessionFinalizedEvent(s, metrics)
	if err := p.publish(ctx, FinalizedSubject(p.config.SubjectPrefix), event.ID, event); err != nil {
		return err
	}

	p.logger.Debug().
		Str("session_id", s.ID).
		Bool("scam", s.ScamDetected).
		Msg("published session finalized event")
	return nil
}

func (p *NATSPublisher) publish(ctx context.Context, subject, id string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// the message id lets JetStream drop duplicates from retried publishes
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(id)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe streams intel events matching sub until ctx is done
func (p *NATSPublisher) Subscribe(ctx context.Context, sub *Subscription) (<-chan *IntelEvent, error) {
	if !p.IsConnected() {
		return nil, ErrNotConnected
	}

	consumer, err := p.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		FilterSubject: p.subscriptionSubject(sub),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	msgs, err := consumer.Messages()
	if err != nil {
		return nil, fmt.Errorf("failed to get messages iterator: %w", err)
	}

	eventCh := make(chan *IntelEvent, 100)
	go func() {
		<-ctx.Done()
		msgs.Stop()
	}()

	go func() {
		defer close(eventCh)

		for {
			msg, err := msgs.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
					return
				}
				p.logger.Warn().Err(err).Msg("error getting next message")
				continue
			}

			var event IntelEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				p.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("failed to unmarshal event")
				_ = msg.Term()
				continue
			}

			_ = msg.Ack()
			if !sub.Matches(&event) {
				continue
			}
			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventCh, nil
}

// subscriptionSubject narrows the consumer to one kind when that is all sub asks for
func (p *NATSPublisher) subscriptionSubject(sub *Subscription) string {
	if sub != nil && len(sub.Kinds) == 1 {
		return IntelSubject(p.config.SubjectPrefix, sub.Kinds[0])
	}
	return p.config.SubjectPrefix + ".intel.>"
}
