package domain

// PatternType classifies a normalized pattern by numbering range.
type PatternType string

const (
	PatternTypeNational      PatternType = "national"
	PatternTypeInternational PatternType = "international"
	PatternTypeExtension     PatternType = "extension"
	PatternTypeEnterprise    PatternType = "enterprise"
	PatternTypeUnknown       PatternType = "unknown"
)

// PatternAction is the routing action attached to a normalized pattern.
type PatternAction string

const (
	PatternActionRoute PatternAction = "route"
)

// PatternUsage enumerates the call manager's learned-pattern usage codes.
type PatternUsage int

const (
	UsageEnterpriseNumber  PatternUsage = 23
	UsageE164Number        PatternUsage = 24
	UsageEnterprisePattern PatternUsage = 25
	UsageE164Pattern       PatternUsage = 26
	UsageAlternateNumber   PatternUsage = 27
	UsageImportedE164      PatternUsage = 30
)

// E164 reports whether the usage code belongs to the E.164 family.
func (u PatternUsage) E164() bool {
	switch u {
	case UsageE164Number, UsageE164Pattern, UsageImportedE164:
		return true
	}
	return false
}

// RawPattern is one learned pattern as exported from the call manager.
// Catalog is the remote catalog key, RouteString the catalog's route string.
type RawPattern struct {
	Catalog     string
	RouteString string
	Pattern     string
	Usage       PatternUsage
}

// NormalizedPattern is a pattern rewritten into the dial plan grammar of
// the target calling service.
type NormalizedPattern struct {
	DialPlan string
	Pattern  string
	Type     PatternType
	Action   PatternAction
}

// RouteType selects what a dial plan routes calls to.
type RouteType string

const (
	RouteTypeTrunk      RouteType = "trunk"
	RouteTypeRouteGroup RouteType = "route_group"
)

// Identity returns the route identity literal used by the provisioning API.
func (rt RouteType) Identity() string {
	if rt == RouteTypeRouteGroup {
		return "ROUTE_GROUP"
	}
	return "TRUNK"
}

// Valid reports whether the route type is one of the recognized values.
func (rt RouteType) Valid() bool {
	return rt == RouteTypeTrunk || rt == RouteTypeRouteGroup
}
