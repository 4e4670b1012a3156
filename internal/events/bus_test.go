package events

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPublish_DeliversToKindSubscribers(t *testing.T) {
	bus := NewBus(slog.Default())

	var mu sync.Mutex
	var got []Kind
	done := make(chan struct{}, 2)

	bus.Subscribe(DeploymentSuccess, func(_ context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		mu.Unlock()
		done <- struct{}{}
	})
	bus.Subscribe(DeploymentFailed, func(_ context.Context, ev Event) {
		t.Errorf("failed handler invoked for %s", ev.Kind)
	})
	bus.SubscribeAll(func(_ context.Context, ev Event) {
		done <- struct{}{}
	})

	bus.Publish(Event{Kind: DeploymentSuccess, UserID: uuid.New()})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler %d not invoked", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != DeploymentSuccess {
		t.Fatalf("got = %v, want [deployment.success]", got)
	}
}

func TestPublish_StampsOccurredAt(t *testing.T) {
	bus := NewBus(slog.Default())
	done := make(chan Event, 1)
	bus.Subscribe(EnvironmentActive, func(_ context.Context, ev Event) { done <- ev })

	bus.Publish(Event{Kind: EnvironmentActive})

	select {
	case ev := <-done:
		if ev.OccurredAt.IsZero() {
			t.Fatalf("OccurredAt not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler not invoked")
	}
}

func TestPublish_SurvivesPanickingHandler(t *testing.T) {
	bus := NewBus(slog.Default())
	done := make(chan struct{}, 1)

	bus.Subscribe(DeploymentFailed, func(_ context.Context, _ Event) {
		panic("boom")
	})
	bus.Subscribe(DeploymentFailed, func(_ context.Context, _ Event) {
		done <- struct{}{}
	})

	bus.Publish(Event{Kind: DeploymentFailed})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("second handler not invoked after sibling panic")
	}
}
