package notify

import "context"

type noopBus struct{}

// NewNoopBus is used when no REDIS_ADDR is configured; events are dropped.
func NewNoopBus() Bus { return noopBus{} }

func (noopBus) Publish(ctx context.Context, evt Event) error { return nil }
func (noopBus) Close() error                                 { return nil }
