package wikidb

import (
	"context"
	"encoding/json"
	"errors"

	"folio/internal/models"
	"folio/internal/relay"
)

// Actions understood by the consumer of the service address.
const (
	ActionAllPages     = "all-pages"
	ActionAllPagesData = "all-pages-data"
	ActionGetPage      = "get-page"
	ActionGetPageByID  = "get-page-by-id"
	ActionCreatePage   = "create-page"
	ActionSavePage     = "save-page"
	ActionDeletePage   = "delete-page"
)

// Failure codes carried in relay.ReplyError.
const (
	CodeNoActionSpecified = "NoActionSpecified"
	CodeBadAction         = "BadAction"
	CodeDBError           = "DBError"
	CodePageExists        = "PageExists"
)

type pageRequest struct {
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

type pageReply struct {
	Found bool        `json:"found"`
	Page  models.Page `json:"page"`
}

type createReply struct {
	ID int64 `json:"id"`
}

// Serve makes svc reachable at address on r.
func Serve(r relay.Relay, address string, svc Service) (func(), error) {
	return r.Consume(address, Handler(svc))
}

// Handler dispatches relay messages to svc by action.
func Handler(svc Service) relay.Handler {
	return func(ctx context.Context, msg relay.Message) (any, error) {
		if msg.Action == "" {
			return nil, relay.Fail(CodeNoActionSpecified, "No action header specified")
		}

		var req pageRequest
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &req); err != nil {
				return nil, relay.Fail(CodeBadAction, "malformed %s request: %v", msg.Action, err)
			}
		}

		switch msg.Action {
		case ActionAllPages:
			names, err := svc.FetchAllPages(ctx)
			return names, dbFailure(err)
		case ActionAllPagesData:
			pages, err := svc.FetchAllPagesData(ctx)
			return pages, dbFailure(err)
		case ActionGetPage:
			p, found, err := svc.FetchPage(ctx, req.Name)
			return pageReply{Found: found, Page: p}, dbFailure(err)
		case ActionGetPageByID:
			p, found, err := svc.FetchPageByID(ctx, req.ID)
			return pageReply{Found: found, Page: p}, dbFailure(err)
		case ActionCreatePage:
			id, err := svc.CreatePage(ctx, req.Name, req.Content)
			return createReply{ID: id}, dbFailure(err)
		case ActionSavePage:
			return struct{}{}, dbFailure(svc.SavePage(ctx, req.ID, req.Content))
		case ActionDeletePage:
			return struct{}{}, dbFailure(svc.DeletePage(ctx, req.ID))
		default:
			return nil, relay.Fail(CodeBadAction, "Bad action: %s", msg.Action)
		}
	}
}

func dbFailure(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPageExists):
		return relay.Fail(CodePageExists, "%v", err)
	default:
		return relay.Fail(CodeDBError, "%v", err)
	}
}
