// Package notify carries per-collection change signals between writers and
// subscribers over Redis pub/sub. A signal carries no payload; subscribers
// re-read the collection from the store, which stays authoritative.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "promptlib:changed:"

type Broker struct {
	client *redis.Client
}

// NewBroker connects to Redis and verifies the connection.
func NewBroker(redisURL string) (*Broker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Broker{client: client}, nil
}

// NewBrokerWithClient creates a broker from an existing Redis client.
func NewBrokerWithClient(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func channelFor(collection string) string {
	return channelPrefix + collection
}

// Publish signals that a collection changed. Losing a signal only delays the
// mirror until the next one, so publish failures are logged, not propagated
// to the write that triggered them.
func (b *Broker) Publish(ctx context.Context, collection string) {
	if err := b.client.Publish(ctx, channelFor(collection), "").Err(); err != nil {
		log.Printf("notify: publish %s: %v", collection, err)
	}
}

// Subscription delivers change signals for a single collection.
type Subscription struct {
	pubsub  *redis.PubSub
	changes chan struct{}
	done    chan struct{}
}

// Subscribe opens a change-signal stream for one collection. Signals are
// coalesced: a pending signal that has not been consumed absorbs later ones.
func (b *Broker) Subscribe(ctx context.Context, collection string) *Subscription {
	pubsub := b.client.Subscribe(ctx, channelFor(collection))

	s := &Subscription{
		pubsub:  pubsub,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-s.done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case s.changes <- struct{}{}:
				default:
				}
			}
		}
	}()

	return s
}

// Changes returns the signal channel.
func (s *Subscription) Changes() <-chan struct{} {
	return s.changes
}

func (s *Subscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Broker) Close() error {
	return b.client.Close()
}
