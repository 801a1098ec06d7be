package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
)

// Confirmation sources.
const (
	SourcePoll     = "poll"
	SourceRealtime = "realtime"
)

// DefaultPollInterval matches how often the balance is re-read while waiting.
const DefaultPollInterval = 3 * time.Second

// ErrPaymentTimeout is returned when no balance increase arrives in time.
var ErrPaymentTimeout = errors.New("payment not confirmed in time")

// Confirmation describes how a payment was detected.
type Confirmation struct {
	InitialBalance int64
	Balance        int64
	Source         string
}

// Confirmer waits for a user's balance to increase after a transfer.
type Confirmer struct {
	store    BalanceStore
	feed     Subscriber
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger
}

// NewConfirmer creates a Confirmer. feed may be nil, in which case only
// polling is used.
func NewConfirmer(store BalanceStore, feed Subscriber, interval, timeout time.Duration, log *logger.Logger) *Confirmer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Confirmer{
		store:    store,
		feed:     feed,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Await blocks until the balance of userID rises above its value at the start
// of the call, either seen by polling or announced on the realtime feed.
func (c *Confirmer) Await(ctx context.Context, userID string) (Confirmation, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var changes <-chan BalanceChange

	if c.feed != nil {
		feedChanges, stop, err := c.feed.Subscribe(userID)
		if err != nil {
			c.warnf("Realtime balance feed unavailable, polling only: %v", err)
		} else {
			changes = feedChanges

			defer stop()
		}
	}

	initial, err := c.store.Balance(ctx, userID)
	if err != nil {
		c.warnf("Could not read initial balance of %s, assuming 0: %v", userID, err)

		initial = 0
	}

	c.infof("Waiting for payment from %s (balance %d)", userID, initial)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Confirmation{}, fmt.Errorf("%w: balance of %s still %d", ErrPaymentTimeout, userID, initial)
			}

			return Confirmation{}, fmt.Errorf("payment wait aborted: %w", ctx.Err())
		case <-ticker.C:
			balance, balanceErr := c.store.Balance(ctx, userID)
			if balanceErr != nil {
				c.warnf("Balance poll failed for %s: %v", userID, balanceErr)

				continue
			}

			if balance > initial {
				return c.confirmed(userID, initial, balance, SourcePoll), nil
			}
		case change := <-changes:
			if change.UserID == userID && change.Increased() {
				return c.confirmed(userID, initial, change.NewBalance, SourceRealtime), nil
			}
		}
	}
}

func (c *Confirmer) confirmed(userID string, initial, balance int64, source string) Confirmation {
	c.infof("Payment confirmed for %s via %s: %d -> %d", userID, source, initial, balance)

	return Confirmation{InitialBalance: initial, Balance: balance, Source: source}
}

func (c *Confirmer) infof(format string, args ...any) {
	if c.log != nil {
		c.log.Info(format, args...)
	}
}

func (c *Confirmer) warnf(format string, args ...any) {
	if c.log != nil {
		c.log.Warn(format, args...)
	}
}
