package payment_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/payment"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *payment.GormBalanceStore {
	t.Helper()

	dsn := fmt.Sprintf("file:payment-%d?mode=memory&cache=shared", time.Now().UnixNano())

	db, err := payment.OpenDatabase(dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)

	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return payment.NewGormBalanceStore(db)
}

// keepCrediting adds one credit to userID every few milliseconds until the
// test ends, so a confirmer sees an increase whenever it took its baseline.
func keepCrediting(t *testing.T, store *payment.GormBalanceStore, userID string) {
	t.Helper()

	stop := make(chan struct{})
	stopped := make(chan struct{})
	t.Cleanup(func() {
		close(stop)
		<-stopped
	})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = store.AddCredits(context.Background(), userID, 1)
			}
		}
	}()
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	conn, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	return conn
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}
