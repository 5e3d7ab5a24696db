package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

func TestRedisBusPublishSubscribe(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis bus test")
	}
	t.Setenv("REDIS_ADDR", addr)
	t.Setenv("REDIS_CHANNEL", "blueprint.events.test."+uuid.NewString())

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	bus, err := NewRedisBus(log)
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	if err := bus.Subscribe(ctx, func(evt Event) {
		select {
		case got <- evt:
		default:
		}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sent := Event{
		Type:     EventTransitionApplied,
		RecordID: uuid.New(),
		Payload:  map[string]interface{}{"transition": "submit"},
	}
	if err := bus.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case evt := <-got:
		if evt.Type != EventTransitionApplied {
			t.Fatalf("event type = %s, want %s", evt.Type, EventTransitionApplied)
		}
		if evt.RecordID != sent.RecordID {
			t.Fatalf("record id = %s, want %s", evt.RecordID, sent.RecordID)
		}
		if evt.OccurredAt.IsZero() {
			t.Fatal("occurred_at must be stamped on publish")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received on the subscribed channel")
	}
}
