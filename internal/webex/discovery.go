package webex

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

// discoverCPAPI resolves the provisioning API base URL from the u2c
// service catalog of the organization.
func (c *Client) discoverCPAPI(ctx context.Context, u2cURL string) (string, error) {
	var catalog struct {
		Services []struct {
			ServiceName string `json:"serviceName"`
			ServiceUrls []struct {
				BaseURL string `json:"baseUrl"`
			} `json:"serviceUrls"`
		} `json:"services"`
	}

	url := fmt.Sprintf("%s/org/%s/catalog", u2cURL, c.orgID)
	if err := c.do(ctx, http.MethodGet, url, nil, &catalog); err != nil {
		return "", fmt.Errorf("webex: service catalog: %w", err)
	}

	for _, svc := range catalog.Services {
		if svc.ServiceName == "cpapi" && len(svc.ServiceUrls) > 0 {
			return strings.TrimSuffix(svc.ServiceUrls[0].BaseURL, "/"), nil
		}
	}
	return "", fmt.Errorf("webex: no cpapi entry in service catalog: %w", pkgerrors.ErrRemoteFatal)
}
