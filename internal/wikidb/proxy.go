package wikidb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"folio/internal/models"
	"folio/internal/relay"
)

type proxy struct {
	relay   relay.Relay
	address string
}

// NewProxy returns a Service whose calls are sent to the consumer at
// address on r.
func NewProxy(r relay.Relay, address string) Service {
	return &proxy{relay: r, address: address}
}

func (p *proxy) call(ctx context.Context, action string, req any, out any) error {
	msg, err := relay.NewMessage(action, req)
	if err != nil {
		return err
	}
	raw, err := p.relay.Request(ctx, p.address, msg)
	if err != nil {
		var re *relay.ReplyError
		if errors.As(err, &re) && re.Code == CodePageExists {
			return fmt.Errorf("%w: %s", ErrPageExists, re.Message)
		}
		return fmt.Errorf("%s: %w", action, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", action, err)
	}
	return nil
}

func (p *proxy) FetchAllPages(ctx context.Context) ([]string, error) {
	var names []string
	err := p.call(ctx, ActionAllPages, nil, &names)
	return names, err
}

func (p *proxy) FetchAllPagesData(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	err := p.call(ctx, ActionAllPagesData, nil, &pages)
	return pages, err
}

func (p *proxy) FetchPage(ctx context.Context, name string) (models.Page, bool, error) {
	var reply pageReply
	err := p.call(ctx, ActionGetPage, pageRequest{Name: name}, &reply)
	return reply.Page, reply.Found, err
}

func (p *proxy) FetchPageByID(ctx context.Context, id int64) (models.Page, bool, error) {
	var reply pageReply
	err := p.call(ctx, ActionGetPageByID, pageRequest{ID: id}, &reply)
	return reply.Page, reply.Found, err
}

func (p *proxy) CreatePage(ctx context.Context, name, content string) (int64, error) {
	var reply createReply
	err := p.call(ctx, ActionCreatePage, pageRequest{Name: name, Content: content}, &reply)
	return reply.ID, err
}

func (p *proxy) SavePage(ctx context.Context, id int64, content string) error {
	return p.call(ctx, ActionSavePage, pageRequest{ID: id, Content: content}, nil)
}

func (p *proxy) DeletePage(ctx context.Context, id int64) error {
	return p.call(ctx, ActionDeletePage, pageRequest{ID: id}, nil)
}
