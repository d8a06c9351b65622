package webex

// DialPlan is a premises dial plan as returned by the provisioning API.
// RouteIdentityID refers to the trunk or route group the plan routes to.
type DialPlan struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	URL               string `json:"url,omitempty"`
	RouteIdentity     string `json:"routeIdentity,omitempty"`
	RouteIdentityType string `json:"routeIdentityType,omitempty"`
	RouteIdentityID   string `json:"routeIdentityId,omitempty"`
}

// Trunk is a local gateway usable as a dial plan route choice.
type Trunk struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	InUse bool   `json:"inUse,omitempty"`
}

// RouteGroup bundles trunks into one route choice.
type RouteGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	InUse bool   `json:"inUse,omitempty"`
}

// DialPatternStatus is one pattern the API refused in a bulk update.
type DialPatternStatus struct {
	Pattern string `json:"dialPattern"`
	Status  string `json:"patternStatus"`
	Message string `json:"message,omitempty"`
}
