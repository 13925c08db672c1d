// Package relay carries request/reply messages and published events between
// the parts of the wiki, either inside one process or across processes
// through Redis.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is returned when nothing consumes the requested address.
	ErrNoHandler = errors.New("relay: no handler for address")
	// ErrTimeout is returned when a reply does not arrive in time.
	ErrTimeout = errors.New("relay: request timed out")
	// ErrClosed is returned by a relay after Close.
	ErrClosed = errors.New("relay: closed")
)

// Message is a request sent to an address.
type Message struct {
	Action string          `json:"action,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// NewMessage builds a message with body encoded as JSON. A nil body is left empty.
func NewMessage(action string, body any) (Message, error) {
	msg := Message{Action: action}
	if body == nil {
		return msg, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s body: %w", action, err)
	}
	msg.Body = raw
	return msg, nil
}

// Handler answers one request. The returned value is encoded as JSON.
type Handler func(ctx context.Context, msg Message) (any, error)

// ReplyError is a failure reported by the consumer of an address.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fail builds a ReplyError.
func Fail(code, format string, args ...any) *ReplyError {
	return &ReplyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Subscription delivers the events published on one topic.
type Subscription struct {
	C     <-chan json.RawMessage
	close func()
}

// Close stops delivery and releases the subscription.
func (s *Subscription) Close() {
	s.close()
}

// Relay is implemented by Local and Redis.
type Relay interface {
	Request(ctx context.Context, address string, msg Message) (json.RawMessage, error)
	Consume(address string, h Handler) (stop func(), err error)
	Publish(ctx context.Context, topic string, body any) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// asReplyError converts a handler error into the form sent back to the caller.
func asReplyError(err error) *ReplyError {
	var re *ReplyError
	if errors.As(err, &re) {
		return re
	}
	return &ReplyError{Code: "Failure", Message: err.Error()}
}

// subscriberBuffer is the channel depth of each subscription; events are
// dropped for subscribers that fall behind.
const subscriberBuffer = 64
