package bridge

import (
	"context"
	"encoding/json"

	"folio/internal/relay"
	"folio/internal/render"
)

// RegisterMarkdown serves AddressMarkdown on r with renderer.
func RegisterMarkdown(r relay.Relay, renderer render.Renderer) (func(), error) {
	return r.Consume(AddressMarkdown, func(ctx context.Context, msg relay.Message) (any, error) {
		var src string
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &src); err != nil {
				return nil, relay.Fail("BadBody", "markdown body must be a JSON string")
			}
		}
		return renderer.Render(src)
	})
}
