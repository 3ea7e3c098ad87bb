package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"discussion-facilitator/backend/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := NewNotifier(ctx, Options{Addr: mr.Addr(), Channel: "test:log"}, logger.Nop())
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewNotifier(ctx, Options{Addr: mr.Addr(), Channel: "test:log"}, logger.Nop())
	require.NoError(t, err)
	defer sub.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	require.NoError(t, sub.Subscribe(ctx, func(b []byte) {
		mu.Lock()
		got = append(got, string(b))
		mu.Unlock()
	}))

	require.NoError(t, pub.Publish(ctx, []byte(`{"last_id":1}`)))
	require.NoError(t, pub.Publish(ctx, []byte(`{"last_id":2}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{`{"last_id":1}`, `{"last_id":2}`}, got)
	mu.Unlock()

	assert.NoError(t, pub.Ping(ctx))
}

func TestNewNotifierFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewNotifier(ctx, Options{Addr: addr}, logger.Nop())
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	n, err := NewNotifier(context.Background(), Options{Addr: mr.Addr()}, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, n.Close())
	assert.NoError(t, n.Close())
}
