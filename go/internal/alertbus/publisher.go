package alertbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/okaplan/seawatch/go/internal/engine"
	"github.com/okaplan/seawatch/go/internal/models"
)

// JetStreamConfig configures the alert bus connection and stream.
type JetStreamConfig struct {
	URL             string
	StreamName      string
	AlertSubject    string // prefix; the level is appended per message
	SnapshotSubject string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
}

// DefaultJetStreamConfig returns the default alert bus configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "DIVE_ALERTS",
		AlertSubject:    "dive.alerts",
		SnapshotSubject: "dive.snapshot",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// Publisher pushes escalations and snapshots onto NATS for external
// consumers (pagers, incident tooling). Alerts go through JetStream so a
// restarting consumer still sees them; snapshots are core NATS publishes,
// the next tick replaces them anyway.
type Publisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	config  JetStreamConfig
	alertCh chan engine.Alert
}

// NewPublisher connects to NATS and ensures the alert stream exists.
func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{
		nc:      nc,
		js:      js,
		config:  cfg,
		alertCh: make(chan engine.Alert, 256),
	}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Dive escalation alert stream",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.AlertSubject)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Run drains queued alerts into JetStream until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	log.Info().Msg("alert publisher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("alert publisher shutting down")
			return
		case alert := <-p.alertCh:
			if err := p.publishAlert(ctx, alert); err != nil {
				log.Error().
					Err(err).
					Str("cart_id", alert.Cart.ID.String()).
					Str("level", string(alert.Level)).
					Msg("failed to publish alert")
			}
		}
	}
}

// BroadcastAlert queues an alert for JetStream publication. Never blocks
// the tick loop.
func (p *Publisher) BroadcastAlert(alert engine.Alert) {
	select {
	case p.alertCh <- alert:
	default:
		log.Warn().
			Str("cart_id", alert.Cart.ID.String()).
			Str("level", string(alert.Level)).
			Msg("alert queue full, dropping alert")
	}
}

// BroadcastSnapshot publishes the full derived state as a core NATS
// message. Lossy on purpose.
func (p *Publisher) BroadcastSnapshot(snaps []models.CartSnapshot) {
	data, err := json.Marshal(map[string]any{
		"timestamp": time.Now().UTC(),
		"carts":     snaps,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}
	if err := p.nc.Publish(p.config.SnapshotSubject, data); err != nil {
		log.Error().Err(err).Msg("failed to publish snapshot")
	}
}

func (p *Publisher) publishAlert(ctx context.Context, alert engine.Alert) error {
	subject := fmt.Sprintf("%s.%s", p.config.AlertSubject, alert.Level)

	msgID := uuid.New()
	env := map[string]any{
		"alertId":   msgID.String(),
		"level":     alert.Level,
		"cartId":    alert.Cart.ID.String(),
		"timestamp": alert.At.UTC(),
		"cart":      alert.Cart,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Alert-Level": []string{string(alert.Level)},
			"Cart-ID":     []string{alert.Cart.ID.String()},
			"Alert-ID":    []string{msgID.String()},
		},
	},
		jetstream.WithMsgID(msgID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("cart_id", alert.Cart.ID.String()).
		Uint64("sequence", ack.Sequence).
		Msg("alert published")
	return nil
}

// Close drops the NATS connection.
func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
