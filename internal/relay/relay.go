// Package relay shares events between server instances over Redis pub/sub so
// an observer connected to one instance sees batches running on another.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/config"
	"github.com/vrsandeep/tunedl/internal/events"
)

const outboxSize = 1024

// wireMessage is what travels on the Redis channel.
type wireMessage struct {
	Origin string          `json:"origin"`
	Topic  string          `json:"topic"`
	Event  events.Envelope `json:"event"`
}

// Connect opens a Redis client from cfg and checks it answers.
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Relay is an events.Publisher. Every event goes to the local publisher and
// is forwarded to Redis in the background; events from other instances are
// handed to the local publisher only.
type Relay struct {
	local   events.Publisher
	rdb     *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	outbox chan wireMessage
	cancel context.CancelFunc
	done   chan struct{}
}

func New(local events.Publisher, rdb *redis.Client, channel string, log *zap.Logger) *Relay {
	return &Relay{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
		outbox:  make(chan wireMessage, outboxSize),
		done:    make(chan struct{}),
	}
}

func (r *Relay) Publish(topic string, ev events.Event) {
	r.local.Publish(topic, ev)
	select {
	case r.outbox <- wireMessage{Origin: r.origin, Topic: topic, Event: ev.Envelope()}:
	default:
		r.log.Warn("relay outbox full, event not forwarded", zap.String("topic", topic))
	}
}

// Start subscribes to the channel and begins forwarding in both directions.
func (r *Relay) Start(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.forward(ctx)
	go func() {
		defer close(r.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := r.handle([]byte(msg.Payload)); err != nil {
					r.log.Warn("dropping relayed event", zap.Error(err))
				}
			}
		}
	}()
	r.log.Info("event relay started", zap.String("channel", r.channel), zap.String("origin", r.origin))
	return nil
}

func (r *Relay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-r.outbox:
			data, err := json.Marshal(m)
			if err != nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := r.rdb.Publish(pctx, r.channel, data).Err(); err != nil {
				r.log.Warn("could not forward event", zap.String("topic", m.Topic), zap.Error(err))
			}
			cancel()
		}
	}
}

// handle republishes a message from another instance locally. Messages this
// instance sent are ignored.
func (r *Relay) handle(payload []byte) error {
	var m wireMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("decode relay message: %w", err)
	}
	if m.Origin == r.origin {
		return nil
	}
	ev, err := events.FromEnvelope(m.Event)
	if err != nil {
		return err
	}
	r.local.Publish(m.Topic, ev)
	return nil
}

// Close stops forwarding. The Redis client stays open; its owner closes it.
func (r *Relay) Close() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
