package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewChannelWithClient(client)
}

func TestNudgeReachesListener(t *testing.T) {
	channel := newTestChannel(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake := channel.Listen(ctx)
	// Give the subscriber a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := channel.Nudge(ctx); err != nil {
		t.Fatalf("nudge: %v", err)
	}

	select {
	case _, ok := <-wake:
		if !ok {
			t.Fatal("wake channel closed early")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no wake received")
	}
}

func TestListenClosesOnCancel(t *testing.T) {
	channel := newTestChannel(t)
	ctx, cancel := context.WithCancel(context.Background())

	wake := channel.Listen(ctx)
	cancel()

	select {
	case _, ok := <-wake:
		if ok {
			// A buffered nudge may arrive first; the close must follow.
			select {
			case _, ok := <-wake:
				if ok {
					t.Fatal("wake channel still open after cancel")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("wake channel not closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wake channel not closed after cancel")
	}
}

func TestPing(t *testing.T) {
	channel := newTestChannel(t)
	if err := channel.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
