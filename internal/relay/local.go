package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Local is an in-process relay.
type Local struct {
	timeout time.Duration

	mu        sync.RWMutex
	consumers map[string][]*localConsumer
	next      map[string]int
	subs      map[string]map[chan json.RawMessage]struct{}
	closed    bool
}

type localConsumer struct {
	handler Handler
}

// NewLocal creates an in-process relay. Requests give up after timeout.
func NewLocal(timeout time.Duration) *Local {
	return &Local{
		timeout:   timeout,
		consumers: make(map[string][]*localConsumer),
		next:      make(map[string]int),
		subs:      make(map[string]map[chan json.RawMessage]struct{}),
	}
}

// Consume registers h for address. Several consumers on one address are
// used in turn.
func (l *Local) Consume(address string, h Handler) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	c := &localConsumer{handler: h}
	l.consumers[address] = append(l.consumers[address], c)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			list := l.consumers[address]
			for i, existing := range list {
				if existing == c {
					l.consumers[address] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(l.consumers[address]) == 0 {
				delete(l.consumers, address)
			}
		})
	}, nil
}

func (l *Local) pick(address string) (*localConsumer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	list := l.consumers[address]
	if len(list) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoHandler, address)
	}
	i := l.next[address] % len(list)
	l.next[address] = i + 1
	return list[i], nil
}

// Request sends msg to the consumer of address and waits for its reply.
func (l *Local) Request(ctx context.Context, address string, msg Message) (json.RawMessage, error) {
	c, err := l.pick(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		body json.RawMessage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		value, err := c.handler(ctx, msg)
		if err != nil {
			done <- result{err: asReplyError(err)}
			return
		}
		body, err := json.Marshal(value)
		done <- result{body: body, err: err}
	}()

	select {
	case res := <-done:
		return res.body, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, address)
		}
		return nil, ctx.Err()
	}
}

// Publish delivers body to every current subscriber of topic.
func (l *Local) Publish(ctx context.Context, topic string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	for ch := range l.subs[topic] {
		select {
		case ch <- raw:
		default:
			slog.Warn("subscriber is full, dropping event", "topic", topic)
		}
	}
	return nil
}

// Subscribe starts receiving events published on topic.
func (l *Local) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	ch := make(chan json.RawMessage, subscriberBuffer)
	if l.subs[topic] == nil {
		l.subs[topic] = make(map[chan json.RawMessage]struct{})
	}
	l.subs[topic][ch] = struct{}{}

	var once sync.Once
	return &Subscription{
		C: ch,
		close: func() {
			once.Do(func() {
				l.mu.Lock()
				defer l.mu.Unlock()
				if _, ok := l.subs[topic][ch]; ok {
					delete(l.subs[topic], ch)
					close(ch)
				}
			})
		},
	}, nil
}

// Close drops every consumer and ends every subscription.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.consumers = nil
	for _, set := range l.subs {
		for ch := range set {
			close(ch)
		}
	}
	l.subs = nil
	return nil
}
