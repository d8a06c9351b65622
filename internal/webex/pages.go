package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

// pageEnvelope is one page of a list response. The item array sits
// under "items" or under a resource specific key; paging.next points at
// the following page.
type pageEnvelope struct {
	fields map[string]json.RawMessage
}

func (p *pageEnvelope) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.fields)
}

func (p *pageEnvelope) next() string {
	raw, ok := p.fields["paging"]
	if !ok {
		return ""
	}
	var paging struct {
		Next string `json:"next"`
	}
	if err := json.Unmarshal(raw, &paging); err != nil {
		return ""
	}
	return paging.Next
}

func (p *pageEnvelope) items() ([]json.RawMessage, error) {
	raw, ok := p.fields["items"]
	if !ok {
		for key, val := range p.fields {
			if key == "paging" {
				continue
			}
			if trimmed := bytes.TrimSpace(val); len(trimmed) > 0 && trimmed[0] == '[' {
				raw, ok = val, true
				break
			}
		}
	}
	if !ok {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("webex: decode list page: %w: %w", pkgerrors.ErrRemoteFatal, err)
	}
	return items, nil
}

// listPages follows paging.next until exhausted and concatenates the
// decoded items.
func listPages[T any](ctx context.Context, c *Client, url string) ([]T, error) {
	var all []T
	for url != "" {
		var page pageEnvelope
		if err := c.do(ctx, http.MethodGet, url, nil, &page); err != nil {
			return nil, err
		}
		items, err := page.items()
		if err != nil {
			return nil, err
		}
		for _, raw := range items {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("webex: decode list item: %w: %w", pkgerrors.ErrRemoteFatal, err)
			}
			all = append(all, v)
		}
		url = page.next()
	}
	return all, nil
}
