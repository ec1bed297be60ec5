package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	var got []Type
	sub := SubscriberFunc(func(ctx context.Context, event Event) error {
		got = append(got, event.Type)
		return nil
	})
	sub2Called := false
	_, err := b.Register(sub)
	require.NoError(t, err)
	_, err = b.Register(SubscriberFunc(func(ctx context.Context, event Event) error {
		sub2Called = true
		return nil
	}))
	require.NoError(t, err)

	err = b.Publish(context.Background(), Event{Type: RunStarted})
	require.NoError(t, err)
	require.Equal(t, []Type{RunStarted}, got)
	require.True(t, sub2Called)
}

func TestPublishStopsAtFirstError(t *testing.T) {
	b := NewBus()
	boom := errors.New("boom")
	called := false
	_, err := b.Register(SubscriberFunc(func(ctx context.Context, event Event) error {
		return boom
	}))
	require.NoError(t, err)
	_, err = b.Register(SubscriberFunc(func(ctx context.Context, event Event) error {
		called = true
		return nil
	}))
	require.NoError(t, err)

	err = b.Publish(context.Background(), Event{Type: RunError})
	require.ErrorIs(t, err, boom)
	require.False(t, called)
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	b := NewBus()
	count := 0
	sub, err := b.Register(SubscriberFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), Event{Type: RunStarted}))
	require.Equal(t, 1, count)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(context.Background(), Event{Type: RunFinished}))
	require.Equal(t, 1, count)
}

func TestRegisterNilSubscriberErrors(t *testing.T) {
	b := NewBus()
	_, err := b.Register(nil)
	require.Error(t, err)
}
