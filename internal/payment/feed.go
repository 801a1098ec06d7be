package payment

import (
	"encoding/json"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

const changeBuffer = 8

// BalanceChange is published whenever a profile's balance is updated.
type BalanceChange struct {
	UserID     string `json:"user_id"`
	OldBalance int64  `json:"old_balance"`
	NewBalance int64  `json:"new_balance"`
}

// Increased reports whether the change added credits.
func (c BalanceChange) Increased() bool {
	return c.NewBalance > c.OldBalance
}

// Subscriber delivers realtime balance changes of one user until stop is
// called.
type Subscriber interface {
	Subscribe(userID string) (changes <-chan BalanceChange, stop func(), err error)
}

// Feed carries balance changes over NATS on "<subject>.<userID>".
type Feed struct {
	conn    *nats.Conn
	subject string
	log     *logger.Logger
}

// NewFeed creates a Feed rooted at subject.
func NewFeed(conn *nats.Conn, subject string, log *logger.Logger) *Feed {
	return &Feed{conn: conn, subject: subject, log: log}
}

// Subject returns the subject that carries changes for userID.
func (f *Feed) Subject(userID string) string {
	return f.subject + "." + userID
}

// Publish announces a balance change.
func (f *Feed) Publish(change BalanceChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal balance change: %w", err)
	}

	err = f.conn.Publish(f.Subject(change.UserID), data)
	if err != nil {
		return fmt.Errorf("failed to publish balance change: %w", err)
	}

	return nil
}

// Subscribe implements Subscriber. Malformed messages are logged and
// dropped, as are changes arriving while the buffer is full.
func (f *Feed) Subscribe(userID string) (<-chan BalanceChange, func(), error) {
	changes := make(chan BalanceChange, changeBuffer)

	sub, err := f.conn.Subscribe(f.Subject(userID), func(msg *nats.Msg) {
		var change BalanceChange

		unmarshalErr := json.Unmarshal(msg.Data, &change)
		if unmarshalErr != nil {
			if f.log != nil {
				f.log.Warn("Dropping malformed balance change on %s: %v", msg.Subject, unmarshalErr)
			}

			return
		}

		select {
		case changes <- change:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to balance changes: %w", err)
	}

	err = f.conn.Flush()
	if err != nil {
		_ = sub.Unsubscribe()

		return nil, nil, fmt.Errorf("failed to flush balance subscription: %w", err)
	}

	stop := func() { _ = sub.Unsubscribe() }

	return changes, stop, nil
}
