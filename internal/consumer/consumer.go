package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CartClearer empties a session's cart.
type CartClearer interface {
	ClearCart(ctx context.Context, sessionID string) (*domain.CartView, error)
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// Attempts bounds how often a clear is retried while the cart store is down.
	Attempts int
	Backoff  time.Duration
}

// CheckoutConsumer clears carts once their checkout has completed.
type CheckoutConsumer struct {
	carts  CartClearer
	reader *kafka.Reader
	logger *zap.Logger
	cfg    Config
}

// checkoutEvent is the outbox payload; only the cart key is used.
type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
}

func (e checkoutEvent) cartKey() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.UserID
}

func NewCheckoutConsumer(carts CartClearer, cfg Config, logger *zap.Logger) *CheckoutConsumer {
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &CheckoutConsumer{
		carts:  carts,
		reader: reader,
		logger: logger.With(zap.String("topic", cfg.Topic)),
		cfg:    cfg,
	}
}

// Run blocks until ctx is cancelled.
func (c *CheckoutConsumer) Run(ctx context.Context) {
	c.logger.Info("checkout consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("error reading message", zap.Error(err))
			continue
		}

		if err := c.handleMessage(ctx, m.Value); err != nil {
			c.logger.Error("failed to clear cart after checkout",
				zap.Int64("offset", m.Offset),
				zap.Int("partition", m.Partition),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Warn("error committing message", zap.Error(err))
		}
	}
}

func (c *CheckoutConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing reader", zap.Error(err))
	}
}

// handleMessage clears the cart named in one outbox payload. Malformed
// payloads are dropped; store outages are retried a few times.
func (c *CheckoutConsumer) handleMessage(ctx context.Context, value []byte) error {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Warn("error parsing message", zap.Error(err))
		return nil
	}
	key := event.cartKey()
	if key == "" {
		c.logger.Warn("missing session_id and user_id", zap.String("checkout_id", event.CheckoutID))
		return nil
	}

	var err error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		_, err = c.carts.ClearCart(ctx, key)
		if err == nil {
			c.logger.Info("cart cleared after checkout",
				zap.String("session_id", key),
				zap.String("checkout_id", event.CheckoutID))
			return nil
		}
		if !errors.Is(err, domain.ErrDependencyUnavailable) || attempt == c.cfg.Attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
		}
	}
	return err
}
