package webex

import (
	"context"
	"net/http"

	"github.com/acme/dialplan-sync/internal/domain"
)

// DialPlans lists every dial plan of the organization.
func (c *Client) DialPlans(ctx context.Context) ([]DialPlan, error) {
	return listPages[DialPlan](ctx, c, c.base+"/dialplans")
}

// CreateDialPlan creates a dial plan routing to the given trunk or
// route group id and returns the new plan's id.
func (c *Client) CreateDialPlan(ctx context.Context, name, routeID string, routeType domain.RouteType) (string, error) {
	body := map[string]string{
		"name":              name,
		"routeIdentity":     routeID,
		"routeIdentityType": routeType.Identity(),
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.base+"/dialplans", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateDialPlanRouting changes the route identity of a dial plan.
func (c *Client) UpdateDialPlanRouting(ctx context.Context, dialPlanID, routeID string, routeType domain.RouteType) error {
	body := map[string]string{
		"routeIdentity":     routeID,
		"routeIdentityType": routeType.Identity(),
	}
	return c.do(ctx, http.MethodPatch, c.base+"/dialplans/"+dialPlanID, body, nil)
}

// DeleteDialPlan removes a dial plan.
func (c *Client) DeleteDialPlan(ctx context.Context, dialPlanID string) error {
	return c.do(ctx, http.MethodDelete, c.base+"/dialplans/"+dialPlanID, nil, nil)
}

// DialPlanPatterns returns the patterns currently in a dial plan.
func (c *Client) DialPlanPatterns(ctx context.Context, dialPlanID string) ([]string, error) {
	return listPages[string](ctx, c, c.base+"/dialplans/"+dialPlanID+"/dialpatterns")
}

type dialPatternOp struct {
	Action      string `json:"action"`
	DialPattern string `json:"dialPattern"`
}

// AddPatterns adds patterns to a dial plan in batches. The returned
// statuses are the patterns the API refused.
func (c *Client) AddPatterns(ctx context.Context, dialPlanID string, patterns []string) ([]DialPatternStatus, error) {
	return c.patchPatterns(ctx, dialPlanID, patterns, "ADD")
}

// DeletePatterns removes patterns from a dial plan in batches.
func (c *Client) DeletePatterns(ctx context.Context, dialPlanID string, patterns []string) ([]DialPatternStatus, error) {
	return c.patchPatterns(ctx, dialPlanID, patterns, "DELETE")
}

func (c *Client) patchPatterns(ctx context.Context, dialPlanID string, patterns []string, action string) ([]DialPatternStatus, error) {
	url := c.base + "/dialplans/" + dialPlanID + "/dialpatterns"

	var rejected []DialPatternStatus
	for start := 0; start < len(patterns); start += c.batch {
		end := start + c.batch
		if end > len(patterns) {
			end = len(patterns)
		}
		ops := make([]dialPatternOp, 0, end-start)
		for _, p := range patterns[start:end] {
			ops = append(ops, dialPatternOp{Action: action, DialPattern: p})
		}
		body := map[string][]dialPatternOp{"dialPatterns": ops}

		var result struct {
			DialPatternStatus []DialPatternStatus `json:"dialPatternStatus"`
		}
		if err := c.do(ctx, http.MethodPatch, url, body, &result); err != nil {
			return rejected, err
		}
		rejected = append(rejected, result.DialPatternStatus...)
	}
	return rejected, nil
}

// Trunks lists the local gateways usable as route choices.
func (c *Client) Trunks(ctx context.Context) ([]Trunk, error) {
	return listPages[Trunk](ctx, c, c.base+"/localgateways?order=name")
}

// RouteGroups lists the route groups usable as route choices.
func (c *Client) RouteGroups(ctx context.Context) ([]RouteGroup, error) {
	return listPages[RouteGroup](ctx, c, c.base+"/routegroups?order=name")
}
