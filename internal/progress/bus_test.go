package progress

import (
	"context"
	"testing"
	"time"
)

func TestPublish_DeliversToSubscriber(t *testing.T) {
	bus := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(ctx)
	defer sub.Close()

	bus.Publish(Update{Worker: 1, BurstsDone: 2, BurstsWant: 10})

	select {
	case u := <-sub.Ch:
		if u.Worker != 1 || u.BurstsDone != 2 {
			t.Errorf("got %+v, want Worker=1 BurstsDone=2", u)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestPublish_DropsWhenSubscriberFull(t *testing.T) {
	bus := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(ctx)
	defer sub.Close()

	// Fill the buffer, then publish a second update that must be dropped
	// rather than block this goroutine.
	bus.Publish(Update{Worker: 0})
	done := make(chan struct{})
	go func() {
		bus.Publish(Update{Worker: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a full subscriber channel")
	}
}

func TestSubscribe_CloseStopsDelivery(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(context.Background())
	sub.Close()

	// Allow the unsubscribe goroutine to run.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(Update{Worker: 9})

	_, ok := <-sub.Ch
	if ok {
		t.Error("channel still open/delivering after Close")
	}
}
