package normalizer

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/acme/dialplan-sync/internal/domain"
)

// classify derives the pattern type from prefix and length rules. Plain
// numbers are checked against the default region's numbering plan; the
// usage code settles patterns learned from E.164 ranges.
func classify(pattern, region string, usage domain.PatternUsage) domain.PatternType {
	if pattern == "" {
		return domain.PatternTypeUnknown
	}
	if strings.HasPrefix(pattern, "+") {
		return domain.PatternTypeInternational
	}

	if usage.E164() {
		cc := phonenumbers.GetCountryCodeForRegion(region)
		if cc > 0 && strings.HasPrefix(pattern, strconv.Itoa(cc)) && len(pattern) > 7 {
			return domain.PatternTypeNational
		}
		return domain.PatternTypeInternational
	}

	if !strings.ContainsRune(pattern, 'X') {
		if num, err := phonenumbers.Parse(pattern, region); err == nil && phonenumbers.IsValidNumber(num) {
			if phonenumbers.GetRegionCodeForNumber(num) == region {
				return domain.PatternTypeNational
			}
			return domain.PatternTypeInternational
		}
	}

	if strings.HasPrefix(pattern, "011") && len(pattern) > 3 {
		return domain.PatternTypeInternational
	}
	if len(pattern) == 11 && pattern[0] == '1' {
		return domain.PatternTypeNational
	}
	if len(pattern) <= 7 {
		return domain.PatternTypeExtension
	}
	return domain.PatternTypeEnterprise
}
