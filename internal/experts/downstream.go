package experts

import (
	"context"
	"encoding/json"

	"aria/internal/coreerr"
	"aria/internal/outbound"
)

// downstream is embedded by experts that call a sibling CRUD router over
// the Resilient Outbound Client.
type downstream struct {
	client  *outbound.Client
	baseURL string
}

// call sends method/path on the downstream router with body, returning the
// raw outbound.Result or a classified ActionResult.Error on failure.
func (d downstream) call(ctx context.Context, method, path string, body any) (*outbound.Result, coreerr.Kind) {
	res, err := d.client.Call(ctx, outbound.Request{
		Service:  outbound.ServiceSiblingCRUD,
		Instance: d.baseURL,
		Method:   method,
		URL:      d.baseURL + path,
		Body:     body,
	})
	if err != nil {
		return nil, coreerr.As(err)
	}
	return res, ""
}

func unmarshalArtifact(body json.RawMessage) []json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	return []json.RawMessage{body}
}
