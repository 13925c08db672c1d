package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// pollInterval bounds each BLPOP so consumers notice Stop.
	pollInterval = time.Second
	replyTTL     = time.Minute
)

type envelope struct {
	ReplyTo string          `json:"replyTo"`
	Action  string          `json:"action,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

type replyEnvelope struct {
	Body  json.RawMessage `json:"body,omitempty"`
	Error *ReplyError     `json:"error,omitempty"`
}

// Redis is a relay shared by every process connected to the same server.
// Requests travel through lists and events through pub/sub channels.
type Redis struct {
	rdb     *redis.Client
	timeout time.Duration

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels []context.CancelFunc
	closed  bool
}

// NewRedis wraps an existing client. Requests give up after timeout.
func NewRedis(rdb *redis.Client, timeout time.Duration) *Redis {
	return &Redis{rdb: rdb, timeout: timeout}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, password string, db int, timeout time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	slog.Info("connected to redis", "addr", addr)
	return NewRedis(rdb, timeout), nil
}

// Request pushes msg onto the address list and waits on a private reply list.
func (r *Redis) Request(ctx context.Context, address string, msg Message) (json.RawMessage, error) {
	replyTo := address + ".reply." + uuid.NewString()
	payload, err := json.Marshal(envelope{ReplyTo: replyTo, Action: msg.Action, Body: msg.Body})
	if err != nil {
		return nil, err
	}
	if err := r.rdb.RPush(ctx, address, payload).Err(); err != nil {
		return nil, fmt.Errorf("push request to %s: %w", address, err)
	}

	wait := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < wait {
			wait = left
		}
	}
	if wait < time.Second {
		wait = time.Second
	}

	res, err := r.rdb.BLPop(ctx, wait, replyTo).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, address)
	}
	if err != nil {
		return nil, fmt.Errorf("wait for reply from %s: %w", address, err)
	}

	var reply replyEnvelope
	if err := json.Unmarshal([]byte(res[1]), &reply); err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", address, err)
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	return reply.Body, nil
}

// Consume starts a worker popping requests for address until stop is called.
func (r *Redis) Consume(address string, h Handler) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancels = append(r.cancels, cancel)

	done := make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		r.consumeLoop(ctx, address, h)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (r *Redis) consumeLoop(ctx context.Context, address string, h Handler) {
	slog.Info("consuming relay address", "address", address)
	for ctx.Err() == nil {
		res, err := r.rdb.BLPop(ctx, pollInterval, address).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("relay pop failed", "address", address, "err", err)
			time.Sleep(pollInterval)
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			slog.Error("dropping malformed request", "address", address, "err", err)
			continue
		}
		go r.answer(ctx, env, h)
	}
}

func (r *Redis) answer(ctx context.Context, env envelope, h Handler) {
	var reply replyEnvelope
	value, err := h(ctx, Message{Action: env.Action, Body: env.Body})
	if err != nil {
		reply.Error = asReplyError(err)
	} else if reply.Body, err = json.Marshal(value); err != nil {
		reply.Error = asReplyError(err)
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		slog.Error("encode relay reply", "err", err)
		return
	}

	// Replies outlive a cancelled consumer so in-flight callers still get them.
	replyCtx := context.WithoutCancel(ctx)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(replyCtx, env.ReplyTo, payload)
	pipe.Expire(replyCtx, env.ReplyTo, replyTTL)
	if _, err := pipe.Exec(replyCtx); err != nil {
		slog.Error("send relay reply", "replyTo", env.ReplyTo, "err", err)
	}
}

// Publish sends body to every subscriber of topic in any process.
func (r *Redis) Publish(ctx context.Context, topic string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	if err := r.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe listens on the Redis channel named topic.
func (r *Redis) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, topic)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan json.RawMessage, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- json.RawMessage(msg.Payload):
			default:
				slog.Warn("subscriber is full, dropping event", "topic", topic)
			}
		}
	}()

	var once sync.Once
	return &Subscription{
		C: out,
		close: func() {
			once.Do(func() { pubsub.Close() })
		},
	}, nil
}

// Close stops all consumers and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return r.rdb.Close()
}
