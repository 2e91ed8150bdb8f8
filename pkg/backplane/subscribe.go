package backplane

import (
	"context"
	"fmt"
	"sync"
)

// Subscription is an active Pub/Sub subscription to a backplane channel.
// Caller must call Close() when done to clean up resources.
//
// Delivery inherits Redis Pub/Sub semantics: at-most-once, nothing replayed
// for late joiners. Consumers treat events as a hint and fall back to direct
// reads when a gap is suspected.
type Subscription struct {
	events <-chan *ChangeEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of change events. The channel is closed when
// the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *ChangeEvent {
	return s.events
}

// Errors returns the channel of subscription errors. Errors are non-fatal
// (typically an unparseable payload); the subscription continues and the
// offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeJobEvents subscribes to change events for a single job.
// Caller must call subscription.Close() when done. Context cancellation also
// stops the subscription.
func (b *Backplane) SubscribeJobEvents(ctx context.Context, jobName string) (*Subscription, error) {
	if b.config.JobChannelPrefix == "" {
		return nil, fmt.Errorf("job channel prefix not configured")
	}
	return b.subscribe(ctx, b.JobChannel(jobName))
}

// SubscribeWorkerEvents subscribes to worker membership events.
// Caller must call subscription.Close() when done.
func (b *Backplane) SubscribeWorkerEvents(ctx context.Context) (*Subscription, error) {
	if b.config.WorkerChannel == "" {
		return nil, fmt.Errorf("worker channel not configured")
	}
	return b.subscribe(ctx, b.config.WorkerChannel)
}

// subscribe starts a subscription to channel, decoding payloads into
// ChangeEvents on a buffered channel (size 10) to avoid blocking the reader
// goroutine. If the subscriber falls behind, Redis drops messages upstream.
func (b *Backplane) subscribe(ctx context.Context, channel string) (*Subscription, error) {
	rdb, err := b.provider()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store handle: %w", err)
	}

	pubsub := rdb.Subscribe(ctx, channel)
	// Confirm the subscription before returning so callers can rely on
	// events published after this call being visible.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *ChangeEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				event, err := ParseChange([]byte(msg.Payload))
				if err != nil {
					select {
					case errorsChan <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
