package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type echoBody struct {
	Text string `json:"text"`
}

func echoHandler(ctx context.Context, msg Message) (any, error) {
	switch msg.Action {
	case "echo":
		var body echoBody
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			return nil, err
		}
		return body, nil
	case "fail":
		return nil, Fail("Broken", "asked to fail")
	default:
		return nil, errors.New("unknown action")
	}
}

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 5*time.Second)
	t.Cleanup(func() { r.Close() })
	return r
}

func relays(t *testing.T) map[string]Relay {
	local := NewLocal(5 * time.Second)
	t.Cleanup(func() { local.Close() })
	return map[string]Relay{
		"local": local,
		"redis": newTestRedis(t),
	}
}

func TestRequestReply(t *testing.T) {
	for name, r := range relays(t) {
		t.Run(name, func(t *testing.T) {
			stop, err := r.Consume("test.echo", echoHandler)
			if err != nil {
				t.Fatalf("Consume() error = %v", err)
			}
			defer stop()

			ctx := context.Background()
			msg, err := NewMessage("echo", echoBody{Text: "hello"})
			if err != nil {
				t.Fatal(err)
			}
			raw, err := r.Request(ctx, "test.echo", msg)
			if err != nil {
				t.Fatalf("Request(echo) error = %v", err)
			}
			var got echoBody
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatal(err)
			}
			if got.Text != "hello" {
				t.Errorf("reply = %+v, want hello", got)
			}

			_, err = r.Request(ctx, "test.echo", Message{Action: "fail"})
			var re *ReplyError
			if !errors.As(err, &re) || re.Code != "Broken" {
				t.Errorf("Request(fail) error = %v, want ReplyError Broken", err)
			}

			_, err = r.Request(ctx, "test.echo", Message{Action: "other"})
			if !errors.As(err, &re) || re.Code != "Failure" {
				t.Errorf("Request(other) error = %v, want ReplyError Failure", err)
			}
		})
	}
}

func TestPublishSubscribe(t *testing.T) {
	for name, r := range relays(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub, err := r.Subscribe(ctx, "test.topic")
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			defer sub.Close()

			if err := r.Publish(ctx, "test.topic", echoBody{Text: "event"}); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			select {
			case raw := <-sub.C:
				var got echoBody
				if err := json.Unmarshal(raw, &got); err != nil {
					t.Fatal(err)
				}
				if got.Text != "event" {
					t.Errorf("event = %+v", got)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no event received")
			}
		})
	}
}

func TestLocalNoHandler(t *testing.T) {
	l := NewLocal(time.Second)
	defer l.Close()

	_, err := l.Request(context.Background(), "nobody", Message{})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("Request() error = %v, want ErrNoHandler", err)
	}

	stop, err := l.Consume("somebody", echoHandler)
	if err != nil {
		t.Fatal(err)
	}
	stop()
	_, err = l.Request(context.Background(), "somebody", Message{})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("Request() after stop error = %v, want ErrNoHandler", err)
	}
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	defer l.Close()

	stop, err := l.Consume("slow", func(ctx context.Context, msg Message) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	_, err = l.Request(context.Background(), "slow", Message{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Request() error = %v, want ErrTimeout", err)
	}
}

func TestRedisTimeoutWithoutConsumer(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Second)
	defer r.Close()

	_, err := r.Request(context.Background(), "nobody", Message{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Request() error = %v, want ErrTimeout", err)
	}
}

func TestLocalClosed(t *testing.T) {
	l := NewLocal(time.Second)
	sub, err := l.Subscribe(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	if _, ok := <-sub.C; ok {
		t.Error("subscription channel still open after Close")
	}
	sub.Close()
	if err := l.Publish(context.Background(), "t", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
}
