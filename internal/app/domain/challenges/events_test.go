package challenges

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

func TestLocalEvents_DispatchesDetachedFromRequest(t *testing.T) {
	received := make(chan models.ChallengeCompletedEvent, 1)
	handlerCtxErr := make(chan error, 1)
	events := NewLocalEvents(func(ctx context.Context, evt models.ChallengeCompletedEvent) error {
		time.Sleep(10 * time.Millisecond)
		handlerCtxErr <- ctx.Err()
		received <- evt
		return errors.New("ignored")
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	evt := models.ChallengeCompletedEvent{UserID: "user-1", ChallengeID: "c-1", CompletedAt: time.Now()}
	require.NoError(t, events.PublishCompleted(ctx, evt))
	cancel()

	select {
	case err := <-handlerCtxErr:
		assert.NoError(t, err, "handler must outlive the request context")
		assert.Equal(t, evt.ChallengeID, (<-received).ChallengeID)
	case <-time.After(2 * time.Second):
		t.Fatal("completion handler was not invoked")
	}
}

func TestNATSEvents_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()

	events := NewNATSEvents(conn, zap.NewNop())
	received := make(chan models.ChallengeCompletedEvent, 1)
	sub, err := events.Subscribe(func(_ context.Context, evt models.ChallengeCompletedEvent) error {
		received <- evt
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	evt := models.ChallengeCompletedEvent{UserID: "user-1", ChallengeID: "c-1", CompletedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, events.PublishCompleted(context.Background(), evt))
	require.NoError(t, conn.Flush())

	select {
	case got := <-received:
		assert.Equal(t, evt.UserID, got.UserID)
		assert.Equal(t, evt.ChallengeID, got.ChallengeID)
		assert.True(t, evt.CompletedAt.Equal(got.CompletedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
