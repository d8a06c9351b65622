package webex

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

// myOrgID resolves the organization of the token owner.
func (c *Client) myOrgID(ctx context.Context) (string, error) {
	var me struct {
		OrgID string `json:"orgId"`
	}
	if err := c.do(ctx, http.MethodGet, c.apiURL+"/people/me", nil, &me); err != nil {
		return "", fmt.Errorf("webex: resolve own org: %w", err)
	}
	return DecodeID(me.OrgID)
}

// DecodeID extracts the bare UUID from a public Webex identifier, the
// base64 form of "ciscospark://us/<TYPE>/<uuid>". A bare UUID passes
// through unchanged.
func DecodeID(id string) (string, error) {
	if u, err := uuid.Parse(id); err == nil {
		return u.String(), nil
	}

	trimmed := strings.TrimRight(id, "=")
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return "", fmt.Errorf("webex: decode identifier: %w: %w", pkgerrors.ErrParse, err)
		}
	}

	decoded := string(raw)
	i := strings.LastIndexByte(decoded, '/')
	if i < 0 || i == len(decoded)-1 {
		return "", fmt.Errorf("webex: identifier %q has no uuid segment: %w", decoded, pkgerrors.ErrParse)
	}
	u, err := uuid.Parse(decoded[i+1:])
	if err != nil {
		return "", fmt.Errorf("webex: identifier uuid: %w: %w", pkgerrors.ErrParse, err)
	}
	return u.String(), nil
}
